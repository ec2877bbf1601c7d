package credential

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Permission is the atomic unit of access control: a permission name
// scoped to a service.
type Permission struct {
	Service string `json:"service" yaml:"service"`
	Name    string `json:"permission" yaml:"permission"`
}

func (p Permission) String() string {
	return p.Service + ":" + p.Name
}

func (p Permission) valid() bool {
	return p.Service != "" && p.Name != ""
}

// ParsePermission parses the "service:permission" form produced by String.
func ParsePermission(s string) (Permission, error) {
	service, name, ok := strings.Cut(s, ":")
	p := Permission{Service: service, Name: name}
	if !ok || !p.valid() {
		return Permission{}, fmt.Errorf("parsing permission %q: %w", s, ErrInvalidArgument)
	}
	return p, nil
}

// Permissions maps a service name to the set of permission names held
// for it. Matching is exact: no wildcards, no hierarchy.
//
// A Permissions value is not safe for concurrent mutation. The Store
// only mutates sets it owns while holding the owning record's lock.
type Permissions struct {
	perms map[string]map[string]struct{}
}

// NewPermissions returns a set holding the given permissions.
func NewPermissions(ps ...Permission) Permissions {
	var s Permissions
	for _, p := range ps {
		s.Add(p)
	}
	return s
}

// PermissionsFromMap builds a set from the {"service": ["perm", ...]} form.
func PermissionsFromMap(m map[string][]string) Permissions {
	var s Permissions
	for service, names := range m {
		for _, name := range names {
			s.Add(Permission{Service: service, Name: name})
		}
	}
	return s
}

func (s Permissions) Contains(p Permission) bool {
	names, ok := s.perms[p.Service]
	if !ok {
		return false
	}
	_, ok = names[p.Name]
	return ok
}

// Add inserts p. It reports whether p was newly added.
func (s *Permissions) Add(p Permission) bool {
	if s.perms == nil {
		s.perms = make(map[string]map[string]struct{})
	}
	names, ok := s.perms[p.Service]
	if !ok {
		names = make(map[string]struct{})
		s.perms[p.Service] = names
	}
	if _, ok := names[p.Name]; ok {
		return false
	}
	names[p.Name] = struct{}{}
	return true
}

// Remove deletes p. It reports whether p was present.
func (s *Permissions) Remove(p Permission) bool {
	names, ok := s.perms[p.Service]
	if !ok {
		return false
	}
	if _, ok := names[p.Name]; !ok {
		return false
	}
	delete(names, p.Name)
	if len(names) == 0 {
		delete(s.perms, p.Service)
	}
	return true
}

// Duplicate returns a deep copy that shares no state with s.
func (s Permissions) Duplicate() Permissions {
	var c Permissions
	for service, names := range s.perms {
		for name := range names {
			c.Add(Permission{Service: service, Name: name})
		}
	}
	return c
}

func (s Permissions) Len() int {
	n := 0
	for _, names := range s.perms {
		n += len(names)
	}
	return n
}

// List returns every permission sorted by service, then name.
func (s Permissions) List() []Permission {
	out := make([]Permission, 0, s.Len())
	for service, names := range s.perms {
		for name := range names {
			out = append(out, Permission{Service: service, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Map returns the {"service": ["perm", ...]} form with sorted names.
func (s Permissions) Map() map[string][]string {
	m := make(map[string][]string, len(s.perms))
	for _, p := range s.List() {
		m[p.Service] = append(m[p.Service], p.Name)
	}
	return m
}

func (s Permissions) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *Permissions) UnmarshalJSON(data []byte) error {
	var m map[string][]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = PermissionsFromMap(m)
	return nil
}

package clash

import (
	"fmt"
	"strings"
)

// RenameGroup renames a proxy group and rewrites every membership entry and
// every rule target equal to the old name. A new name that collides with
// another group or with a sentinel target is rejected; silently producing a
// document with two identically named groups would be ambiguous.
func (d *Document) RenameGroup(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyGroupName
	}
	idx := d.GroupIndex(oldName)
	if idx < 0 {
		return fmt.Errorf("rename %q: %w", oldName, ErrGroupNotFound)
	}
	if newName == oldName {
		return nil
	}
	if d.HasGroup(newName) || IsSentinel(newName) {
		return fmt.Errorf("rename %q to %q: %w", oldName, newName, ErrGroupExists)
	}

	d.ProxyGroups[idx].Name = newName
	for i := range d.ProxyGroups {
		members := d.ProxyGroups[i].Proxies
		for j := range members {
			if members[j] == oldName {
				members[j] = newName
			}
		}
	}
	for i := range d.Rules {
		if d.Rules[i].Target == oldName {
			d.Rules[i].Target = newName
		}
	}
	return nil
}

// RemoveGroup deletes a group and strips its name from every other group's
// membership list. Rule targets still naming the group are deliberately left
// in place; validation reports them as unresolved afterwards.
func (d *Document) RemoveGroup(name string) error {
	idx := d.GroupIndex(name)
	if idx < 0 {
		return fmt.Errorf("remove %q: %w", name, ErrGroupNotFound)
	}
	d.ProxyGroups = append(d.ProxyGroups[:idx], d.ProxyGroups[idx+1:]...)
	for i := range d.ProxyGroups {
		g := &d.ProxyGroups[i]
		kept := g.Proxies[:0]
		for _, member := range g.Proxies {
			if member != name {
				kept = append(kept, member)
			}
		}
		g.Proxies = kept
	}
	return nil
}

// RemoveMember deletes one entry from a group's membership list by position.
func (d *Document) RemoveMember(group string, index int) error {
	idx := d.GroupIndex(group)
	if idx < 0 {
		return fmt.Errorf("group %q: %w", group, ErrGroupNotFound)
	}
	g := &d.ProxyGroups[idx]
	if index < 0 || index >= len(g.Proxies) {
		return fmt.Errorf("group %q index %d: %w", group, index, ErrIndexOutOfRange)
	}
	g.Proxies = append(g.Proxies[:index], g.Proxies[index+1:]...)
	return nil
}

// MoveMember repositions one membership entry within a group.
func (d *Document) MoveMember(group string, from, to int) error {
	idx := d.GroupIndex(group)
	if idx < 0 {
		return fmt.Errorf("group %q: %w", group, ErrGroupNotFound)
	}
	g := &d.ProxyGroups[idx]
	if from < 0 || from >= len(g.Proxies) || to < 0 || to >= len(g.Proxies) {
		return fmt.Errorf("group %q move %d to %d: %w", group, from, to, ErrIndexOutOfRange)
	}
	if from == to {
		return nil
	}
	member := g.Proxies[from]
	g.Proxies = append(g.Proxies[:from], g.Proxies[from+1:]...)
	rest := append(g.Proxies[:to:to], member)
	g.Proxies = append(rest, g.Proxies[to:]...)
	return nil
}

// MoveGroup repositions a group within the proxy-groups sequence.
func (d *Document) MoveGroup(from, to int) error {
	if from < 0 || from >= len(d.ProxyGroups) || to < 0 || to >= len(d.ProxyGroups) {
		return fmt.Errorf("move group %d to %d: %w", from, to, ErrIndexOutOfRange)
	}
	if from == to {
		return nil
	}
	g := d.ProxyGroups[from]
	d.ProxyGroups = append(d.ProxyGroups[:from], d.ProxyGroups[from+1:]...)
	rest := append(d.ProxyGroups[:to:to], g)
	d.ProxyGroups = append(rest, d.ProxyGroups[to:]...)
	return nil
}

// AddGroup appends a new group. Names are unique across groups and must not
// shadow a sentinel target.
func (d *Document) AddGroup(g ProxyGroup) error {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return ErrEmptyGroupName
	}
	if d.HasGroup(g.Name) || IsSentinel(g.Name) {
		return fmt.Errorf("add group %q: %w", g.Name, ErrGroupExists)
	}
	if g.Type == "" {
		g.Type = "select"
	}
	d.ProxyGroups = append(d.ProxyGroups, g)
	return nil
}

// AddMember appends a node/group reference to a group's membership list.
func (d *Document) AddMember(group, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("group %q: member reference is empty", group)
	}
	idx := d.GroupIndex(group)
	if idx < 0 {
		return fmt.Errorf("group %q: %w", group, ErrGroupNotFound)
	}
	d.ProxyGroups[idx].Proxies = append(d.ProxyGroups[idx].Proxies, ref)
	return nil
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package routing decides who an e-file may be marked to.
//
// Regions form a district > zone > ward tree. Ordinary staff route files
// along their own branch of the tree: to colleagues in the same region, up
// to its ancestors, or down to its descendants. Executives (CE, COO, CEO)
// sit outside the tree and are reachable from everywhere; they and admins
// may route to anyone.
package routing

import (
	"sort"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/models"
)

// Tree is a parent index over regions.
type Tree struct {
	parent map[string]string
}

func NewTree(regions []models.Region) *Tree {
	t := &Tree{parent: make(map[string]string, len(regions))}
	for _, r := range regions {
		p := ""
		if r.ParentID != nil {
			p = *r.ParentID
		}
		t.parent[r.ID] = p
	}
	return t
}

// IsAncestorOrSelf reports whether anc is id or one of its ancestors.
func (t *Tree) IsAncestorOrSelf(anc, id string) bool {
	// bounded walk guards against a corrupted parent cycle
	for steps := 0; id != "" && steps <= len(t.parent); steps++ {
		if id == anc {
			return true
		}
		id = t.parent[id]
	}
	return false
}

// SameBranch reports whether a and b lie on one root-to-leaf path.
func (t *Tree) SameBranch(a, b string) bool {
	return t.IsAncestorOrSelf(a, b) || t.IsAncestorOrSelf(b, a)
}

// Allowed reports whether sender may mark a file to recipient.
func Allowed(sender, recipient models.User, tree *Tree) bool {
	if !recipient.Active || recipient.ID == sender.ID {
		return false
	}
	if sender.Role == models.RoleAdmin || auth.IsExecutive(sender.Role) || auth.IsExecutive(recipient.Role) {
		return true
	}

	sr, rr := regionOf(sender), regionOf(recipient)
	switch {
	case sr == "" && rr == "":
		return true
	case sr == "" || rr == "":
		return false
	}
	return tree.SameBranch(sr, rr)
}

// Recipients filters candidates down to those sender may mark to, ordered
// by seniority and then name.
func Recipients(sender models.User, candidates []models.User, tree *Tree) []models.User {
	out := make([]models.User, 0, len(candidates))
	for _, c := range candidates {
		if Allowed(sender, c, tree) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Role), rank(out[j].Role)
		if ri != rj {
			return ri < rj
		}
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func regionOf(u models.User) string {
	if u.RegionID == nil {
		return ""
	}
	return *u.RegionID
}

func rank(role string) int {
	switch role {
	case models.RoleCEO:
		return 0
	case models.RoleCOO:
		return 1
	case models.RoleCE:
		return 2
	case models.RoleAdmin:
		return 3
	case models.RoleClerk:
		return 4
	default:
		return 5
	}
}

// Package jss talks to the Jamf Pro Classic API.
package jss

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Kind is the type of a remote object
type Kind string

const (
	Script                     Kind = "Script"
	ComputerExtensionAttribute Kind = "ComputerExtensionAttribute"
)

// Kinds lists every supported Kind
var Kinds = []Kind{Script, ComputerExtensionAttribute}

var endpoints = map[Kind]string{
	Script:                     "scripts",
	ComputerExtensionAttribute: "computerextensionattributes",
}

// ErrUnknownKind means a mode name matches no Kind
var ErrUnknownKind = errors.New("unknown object kind")

// Endpoint returns the Classic API resource name of the kind
func (k Kind) Endpoint() string { return endpoints[k] }

// ParseKind maps a mode name to a Kind. Names are case sensitive.
func ParseKind(s string) (Kind, error) {
	if _, ok := endpoints[Kind(s)]; ok {
		return Kind(s), nil
	}
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return "", fmt.Errorf("%w %q (expected one of %s)", ErrUnknownKind, s, strings.Join(names, ", "))
}

// ErrNotFound means the server has no object of that kind and name
var ErrNotFound = errors.New("object not found on JSS")

// Object is a remote object as returned by the server. Doc is edited in
// place and written back whole.
type Object struct {
	Kind Kind
	Name string
	Doc  *etree.Document
}

// ID returns the object's numeric id as text, or "" if the document has none
func (o *Object) ID() string {
	root := o.Doc.Root()
	if root == nil {
		return ""
	}
	if id := root.SelectElement("id"); id != nil {
		return strings.TrimSpace(id.Text())
	}
	return ""
}

// Store loads and saves remote objects
type Store interface {
	Load(ctx context.Context, kind Kind, name string) (*Object, error)
	Save(ctx context.Context, obj *Object) error
}

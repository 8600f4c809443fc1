package sync

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/beevik/etree"

	"github.com/schaermu/git2jss/internal/jss"
)

var (
	// ErrUnknownMode means no variant exists for the requested mode.
	ErrUnknownMode = jss.ErrUnknownKind
	// ErrUnsupportedObject means the remote document lacks the structure
	// the variant writes into.
	ErrUnsupportedObject = errors.New("unsupported object")
)

// Variant writes a commit log and a script payload into the fields of one
// kind of remote object
type Variant interface {
	Kind() jss.Kind
	Apply(obj *jss.Object, log, payload string) error
}

// VariantFor returns the variant handling mode
func VariantFor(mode string) (Variant, error) {
	kind, err := jss.ParseKind(mode)
	if err != nil {
		return nil, err
	}
	if kind == jss.ComputerExtensionAttribute {
		return extensionAttributeVariant{}, nil
	}
	return scriptVariant{}, nil
}

// scriptVariant stores the log in notes and the payload base64 encoded.
// The plaintext script_contents element is dropped so the server takes the
// encoded copy.
type scriptVariant struct{}

func (scriptVariant) Kind() jss.Kind { return jss.Script }

func (scriptVariant) Apply(obj *jss.Object, log, payload string) error {
	root, err := rootElement(obj, "script")
	if err != nil {
		return err
	}

	child(root, "notes").SetText(log)
	child(root, "script_contents_encoded").SetText(base64.StdEncoding.EncodeToString([]byte(payload)))
	if plain := root.SelectElement("script_contents"); plain != nil {
		root.RemoveChild(plain)
	}
	return nil
}

// extensionAttributeVariant stores the log in description and the payload
// as the script of the Mac input type.
type extensionAttributeVariant struct{}

func (extensionAttributeVariant) Kind() jss.Kind { return jss.ComputerExtensionAttribute }

func (extensionAttributeVariant) Apply(obj *jss.Object, log, payload string) error {
	root, err := rootElement(obj, "computer_extension_attribute")
	if err != nil {
		return err
	}

	input := root.FindElement("input_type[platform='Mac']")
	if input == nil {
		return fmt.Errorf("%w: %s %q has no Mac input type", ErrUnsupportedObject, obj.Kind, obj.Name)
	}

	child(root, "description").SetText(log)
	child(input, "script").SetText(payload)
	return nil
}

func rootElement(obj *jss.Object, tag string) (*etree.Element, error) {
	root := obj.Doc.Root()
	if root == nil || root.Tag != tag {
		return nil, fmt.Errorf("%w: %s %q is not a <%s> document", ErrUnsupportedObject, obj.Kind, obj.Name, tag)
	}
	return root, nil
}

// child returns the first child element named tag, creating it if needed
func child(parent *etree.Element, tag string) *etree.Element {
	if el := parent.SelectElement(tag); el != nil {
		return el
	}
	return parent.CreateElement(tag)
}

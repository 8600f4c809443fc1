package sync

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/schaermu/git2jss/internal/jss"
	"github.com/schaermu/git2jss/internal/jss/jsstest"
	"github.com/schaermu/git2jss/internal/repo"
)

const (
	testUser = "api"
	testPass = "s3cret"
)

// fakeSource implements Source over in-memory files.
type fakeSource struct {
	files     map[string]string
	info      repo.FileInfo
	infoErr   error
	infoCalls int
}

func (f *fakeSource) OpenFile(rel string) (io.ReadCloser, error) {
	content, ok := f.files[rel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repo.ErrFileNotFound, rel)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (f *fakeSource) FileInfo(_ context.Context, rel string) (repo.FileInfo, error) {
	f.infoCalls++
	if f.infoErr != nil {
		return repo.FileInfo{}, f.infoErr
	}
	info := f.info
	info.Path = rel
	return info, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		files: map[string]string{
			"hello.sh":       "#!/bin/sh\n# @@VERSION by @@USER\necho hi\n",
			"sub/report.py":  "print('@@PATH')\n",
			"binary.sh":      "\xff\xfe",
			"ea/last_run.sh": "#!/bin/sh\necho \"<result>@@DATE</result>\"\n",
		},
		info: repo.FileInfo{
			Version: "v1.0",
			Origin:  "https://example.com/scripts",
			Date:    `"Sat Mar 17 09:14:38 2018 +0000"`,
			Log:     "abc1234 - Sat, 17 Mar 2018 09:14:38 +0000 test@test.com: \n Initial commit",
		},
	}
}

func newTestServer(t *testing.T) (*jsstest.Server, *jss.Client) {
	t.Helper()
	srv := jsstest.NewServer(t, testUser, testPass)
	srv.Add("scripts", "hello.sh", `<script><id>1</id><name>hello.sh</name><notes>old</notes><script_contents>old</script_contents></script>`)
	srv.Add("scripts", "report.py", `<script><id>2</id><name>report.py</name></script>`)
	srv.Add("scripts", "binary.sh", `<script><id>3</id><name>binary.sh</name></script>`)
	srv.Add("computerextensionattributes", "last_run.sh", `<computer_extension_attribute><id>4</id><name>last_run.sh</name><description/><input_type><type>script</type><platform>Mac</platform></input_type></computer_extension_attribute>`)
	srv.Add("computerextensionattributes", "windows.sh", `<computer_extension_attribute><id>5</id><name>windows.sh</name><input_type><type>script</type><platform>Windows</platform></input_type></computer_extension_attribute>`)
	return srv, jss.NewClient(srv.URL, testUser, testPass, true, testLogger())
}

func mustVariant(t *testing.T, mode string) Variant {
	t.Helper()
	v, err := VariantFor(mode)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func decodedScript(t *testing.T, obj *jss.Object) string {
	t.Helper()
	el := obj.Doc.FindElement("./script/script_contents_encoded")
	if el == nil {
		t.Fatal("script_contents_encoded missing")
	}
	data, err := base64.StdEncoding.DecodeString(el.Text())
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	return string(data)
}

func TestOpenDefaultsNameToBaseName(t *testing.T) {
	_, store := newTestServer(t)

	p, err := Open(context.Background(), newFakeSource(), store, OpenOptions{
		Path:    "sub/report.py",
		Variant: mustVariant(t, "Script"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p.Object().Name != "report.py" {
		t.Errorf("Name = %q, want report.py", p.Object().Name)
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    OpenOptions
		fail    int
		wantErr error
	}{
		{
			name:    "target missing",
			opts:    OpenOptions{Path: "hello.sh", Name: "DOES_NOT_EXIST"},
			wantErr: ErrTargetNotFound,
		},
		{
			name:    "target checked before file",
			opts:    OpenOptions{Path: "missing.sh", Name: "DOES_NOT_EXIST"},
			wantErr: ErrTargetNotFound,
		},
		{
			name:    "file missing",
			opts:    OpenOptions{Path: "missing.sh", Name: "hello.sh"},
			wantErr: repo.ErrFileNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, store := newTestServer(t)
			tt.opts.Variant = mustVariant(t, "Script")
			_, err := Open(ctx, newFakeSource(), store, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("server error is not a missing target", func(t *testing.T) {
		srv, store := newTestServer(t)
		srv.FailWith(http.StatusInternalServerError)
		_, err := Open(ctx, newFakeSource(), store, OpenOptions{Path: "hello.sh", Variant: mustVariant(t, "Script")})
		if errors.Is(err, ErrTargetNotFound) {
			t.Fatalf("500 reported as ErrTargetNotFound: %v", err)
		}
		var apiErr *jss.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
			t.Errorf("expected APIError 500, got %v", err)
		}
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		_, store := newTestServer(t)
		_, err := Open(ctx, newFakeSource(), store, OpenOptions{Path: "binary.sh", Variant: mustVariant(t, "Script")})
		if !errors.Is(err, ErrNotText) {
			t.Errorf("expected ErrNotText, got %v", err)
		}
	})
}

func TestUpdateScript(t *testing.T) {
	_, store := newTestServer(t)
	src := newFakeSource()

	p, err := Open(context.Background(), src, store, OpenOptions{
		Path:    "hello.sh",
		Variant: mustVariant(t, "Script"),
		User:    "jamf-admin",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Update(context.Background(), true); err != nil {
		t.Fatalf("Update: %v", err)
	}

	obj := p.Object()
	if got := obj.Doc.FindElement("./script/notes").Text(); got != src.info.Log {
		t.Errorf("notes = %q, want %q", got, src.info.Log)
	}
	want := "#!/bin/sh\n# v1.0 by jamf-admin\necho hi\n"
	if got := decodedScript(t, obj); got != want {
		t.Errorf("script = %q, want %q", got, want)
	}
	if obj.Doc.FindElement("./script/script_contents") != nil {
		t.Error("plaintext script_contents should be removed")
	}
}

func TestUpdateWithoutTemplate(t *testing.T) {
	_, store := newTestServer(t)
	src := newFakeSource()

	p, err := Open(context.Background(), src, store, OpenOptions{Path: "hello.sh", Variant: mustVariant(t, "Script")})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Update(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if got := decodedScript(t, p.Object()); got != src.files["hello.sh"] {
		t.Errorf("expected raw content, got %q", got)
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	_, store := newTestServer(t)
	ctx := context.Background()

	p, err := Open(ctx, newFakeSource(), store, OpenOptions{Path: "hello.sh", Variant: mustVariant(t, "Script")})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Update(ctx, true); err != nil {
		t.Fatal(err)
	}
	first, err := p.Payload()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Update(ctx, true); err != nil {
		t.Fatal(err)
	}
	second, err := p.Payload()
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("second Update changed the document:\n%s\n%s", first, second)
	}
}

func TestUpdateFileInfoError(t *testing.T) {
	_, store := newTestServer(t)
	src := newFakeSource()
	src.infoErr = errors.New("git log failed")

	p, err := Open(context.Background(), src, store, OpenOptions{Path: "hello.sh", Variant: mustVariant(t, "Script")})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Update(context.Background(), true); err == nil {
		t.Error("expected error from FileInfo")
	}
}

func TestUpdateExtensionAttribute(t *testing.T) {
	_, store := newTestServer(t)
	src := newFakeSource()

	p, err := Open(context.Background(), src, store, OpenOptions{
		Path:    "ea/last_run.sh",
		Variant: mustVariant(t, "ComputerExtensionAttribute"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Update(context.Background(), true); err != nil {
		t.Fatalf("Update: %v", err)
	}

	obj := p.Object()
	if got := obj.Doc.FindElement("./computer_extension_attribute/description").Text(); got != src.info.Log {
		t.Errorf("description = %q", got)
	}
	script := obj.Doc.FindElement("./computer_extension_attribute/input_type[platform='Mac']/script")
	if script == nil {
		t.Fatal("script not written under the Mac input type")
	}
	want := "#!/bin/sh\necho \"<result>\"Sat Mar 17 09:14:38 2018 +0000\"</result>\"\n"
	if script.Text() != want {
		t.Errorf("script = %q, want %q", script.Text(), want)
	}
}

func TestUpdateExtensionAttributeWithoutMacInput(t *testing.T) {
	_, store := newTestServer(t)
	src := newFakeSource()
	src.files["windows.sh"] = "echo win\n"

	p, err := Open(context.Background(), src, store, OpenOptions{
		Path:    "windows.sh",
		Variant: mustVariant(t, "ComputerExtensionAttribute"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Update(context.Background(), true); !errors.Is(err, ErrUnsupportedObject) {
		t.Errorf("expected ErrUnsupportedObject, got %v", err)
	}
}

func TestSave(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	p, err := Open(ctx, newFakeSource(), store, OpenOptions{Path: "hello.sh", Variant: mustVariant(t, "Script")})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Update(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := p.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	puts := srv.Puts()
	if len(puts) != 1 || puts[0].Endpoint != "scripts" || puts[0].Key != "1" {
		t.Fatalf("unexpected PUTs %+v", puts)
	}
	payload, _ := p.Payload()
	if puts[0].Body != string(payload) {
		t.Errorf("PUT body differs from Payload")
	}
}

func TestSaveError(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	p, err := Open(ctx, newFakeSource(), store, OpenOptions{Path: "hello.sh", Variant: mustVariant(t, "Script")})
	if err != nil {
		t.Fatal(err)
	}
	srv.FailWith(http.StatusUnauthorized)
	var apiErr *jss.APIError
	if err := p.Save(ctx); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 APIError, got %v", err)
	}
}

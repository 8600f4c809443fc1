// Package jsstest provides an in-memory JSS for tests.
package jsstest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/beevik/etree"
)

// Put records one write received by the server
type Put struct {
	Endpoint string
	By       string
	Key      string
	Body     string
}

// Server is a Classic API fake holding objects keyed by endpoint and name
type Server struct {
	*httptest.Server

	user     string
	password string

	mu      sync.Mutex
	objects map[string]string // endpoint/name -> XML
	ids     map[string]string // endpoint/id -> name
	puts    []Put
	status  int
}

// NewServer starts a fake JSS accepting the given credentials. It is closed
// when the test ends.
func NewServer(t testing.TB, user, password string) *Server {
	t.Helper()
	s := &Server{
		user:     user,
		password: password,
		objects:  make(map[string]string),
		ids:      make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/JSSResource/{endpoint}/{by}/{key}", s.handleResource)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Add stores an object. An <id> element in the document makes it
// addressable by id as well.
func (s *Server) Add(endpoint, name, xml string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(endpoint, name, xml)
}

// Get returns the stored document of an object
func (s *Server) Get(endpoint, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	xml, ok := s.objects[endpoint+"/"+name]
	return xml, ok
}

// Puts returns every write received so far
func (s *Server) Puts() []Put {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Put(nil), s.puts...)
}

// FailWith makes every following request answer with status. Zero restores
// normal behaviour.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Server) store(endpoint, name, xml string) {
	s.objects[endpoint+"/"+name] = xml
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err == nil && doc.Root() != nil {
		if id := doc.Root().SelectElement("id"); id != nil {
			s.ids[endpoint+"/"+strings.TrimSpace(id.Text())] = name
		}
	}
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	user, password, ok := r.BasicAuth()
	if !ok || user != s.user || password != s.password {
		http.Error(w, "The request requires user authentication", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != 0 {
		http.Error(w, http.StatusText(s.status), s.status)
		return
	}

	endpoint, by, key := r.PathValue("endpoint"), r.PathValue("by"), r.PathValue("key")
	name := key
	switch by {
	case "name":
	case "id":
		var ok bool
		if name, ok = s.ids[endpoint+"/"+key]; !ok {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
	default:
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		xml, ok := s.objects[endpoint+"/"+name]
		if !ok {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, xml)

	case http.MethodPut:
		if _, ok := s.objects[endpoint+"/"+name]; !ok {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "Failed to read body", http.StatusInternalServerError)
			return
		}
		s.puts = append(s.puts, Put{Endpoint: endpoint, By: by, Key: key, Body: string(body)})
		s.store(endpoint, name, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, "<%s><id>%s</id></%s>", endpoint, key, endpoint)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

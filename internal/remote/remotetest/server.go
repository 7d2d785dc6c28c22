// Package remotetest provides an in-memory cart API for tests.
package remotetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// DefaultToken is the bearer credential a new Server accepts.
const DefaultToken = "valid-token"

// Product is a catalogue entry the server populates cart lines from.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	ImageURL string
}

// Line is one server cart line.
type Line struct {
	ProductID string
	Quantity  int
}

// Call records a request the server received.
type Call struct {
	Method    string
	Path      string
	ProductID string
	Quantity  int
	Type      string
}

type failure struct {
	method    string
	path      string
	productID string
	status    int
	remaining int
}

// Server mimics the cart API at /api/v1/cart.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	token     string
	lines     []Line
	catalog   map[string]Product
	populate  bool
	calls     []Call
	failures  []*failure
	unhealthy bool
}

// NewServer starts a cart API that accepts DefaultToken and populates
// productId with the catalogue document.
func NewServer() *Server {
	s := &Server{
		token:    DefaultToken,
		catalog:  make(map[string]Product),
		populate: true,
	}

	r := chi.NewRouter()
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/", s.handleGet)
		r.Post("/add", s.handleAdd)
		r.Put("/update", s.handleUpdate)
		r.Delete("/remove", s.handleRemove)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL returns the API root clients should be configured with.
func (s *Server) BaseURL() string {
	return s.URL + "/api/v1"
}

// AddProduct registers catalogue entries.
func (s *Server) AddProduct(products ...Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.catalog[p.ID] = p
	}
}

// SetLines replaces the server cart.
func (s *Server) SetLines(lines ...Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append([]Line(nil), lines...)
}

// Lines returns a copy of the server cart.
func (s *Server) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.lines...)
}

// SetPopulate controls whether productId is sent as a document or a bare id.
func (s *Server) SetPopulate(populate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.populate = populate
}

// RevokeToken makes every subsequent call answer 401.
func (s *Server) RevokeToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// SetUnhealthy makes every call answer 503 until cleared.
func (s *Server) SetUnhealthy(unhealthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unhealthy = unhealthy
}

// FailNext makes the next n calls matching method, path and productID
// (empty matches any) answer status without changing the cart.
func (s *Server) FailNext(method, path, productID string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{
		method: method, path: path, productID: productID, status: status, remaining: n,
	})
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded requests with the given method and path.
func (s *Server) CallsTo(method, path string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

type mutation struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Type      string `json:"type"`
}

// admit records the call and applies auth and injected failures. It returns
// false when a response has already been written. The caller holds s.mu.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, m mutation) bool {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	path = strings.TrimSuffix(path, "/")
	s.calls = append(s.calls, Call{Method: r.Method, Path: path, ProductID: m.ProductID, Quantity: m.Quantity, Type: m.Type})

	if s.unhealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "service unavailable"})
		return false
	}

	auth := r.Header.Get("Authorization")
	if s.token == "" || auth != "Bearer "+s.token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Unauthorized"})
		return false
	}

	for _, f := range s.failures {
		if f.remaining == 0 || f.method != r.Method || f.path != path {
			continue
		}
		if f.productID != "" && f.productID != m.ProductID {
			continue
		}
		f.remaining--
		writeJSON(w, f.status, map[string]any{"success": false, "message": http.StatusText(f.status)})
		return false
	}

	return true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.admit(w, r, mutation{}) {
		return
	}
	s.writeCart(w)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMutation(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.admit(w, r, m) {
		return
	}
	if m.Quantity < 1 {
		m.Quantity = 1
	}
	if i := s.index(m.ProductID); i >= 0 {
		s.lines[i].Quantity += m.Quantity
	} else {
		s.lines = append(s.lines, Line{ProductID: m.ProductID, Quantity: m.Quantity})
	}
	s.writeCart(w)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMutation(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.admit(w, r, m) {
		return
	}
	i := s.index(m.ProductID)
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Item not found in cart"})
		return
	}
	switch m.Type {
	case "increase":
		s.lines[i].Quantity++
	case "decrease":
		if s.lines[i].Quantity > 1 {
			s.lines[i].Quantity--
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid type"})
		return
	}
	s.writeCart(w)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMutation(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.admit(w, r, m) {
		return
	}
	if i := s.index(m.ProductID); i >= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	}
	s.writeCart(w)
}

func (s *Server) index(productID string) int {
	for i, l := range s.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// writeCart renders the cart the way the backend does. The caller holds s.mu.
func (s *Server) writeCart(w http.ResponseWriter) {
	items := make([]map[string]any, 0, len(s.lines))
	total := decimal.Zero
	for _, l := range s.lines {
		p, known := s.catalog[l.ProductID]
		item := map[string]any{"quantity": l.Quantity}
		switch {
		case s.populate && known:
			item["productId"] = map[string]any{
				"_id":          p.ID,
				"productName":  p.Name,
				"productPrice": p.Price,
				"productImg":   []map[string]string{{"url": p.ImageURL}},
			}
			item["price"] = p.Price
		default:
			item["productId"] = l.ProductID
			if known {
				item["price"] = p.Price
			}
		}
		if known {
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cart":    map[string]any{"items": items, "totalPrice": total},
	})
}

func decodeMutation(w http.ResponseWriter, r *http.Request) (mutation, bool) {
	var m mutation
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil || m.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "productId is required"})
		return m, false
	}
	return m, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

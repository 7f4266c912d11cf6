package header

import "io"

// Generic is the fallback representation for any header name not in
// the canonical table, and for extension headers the caller does not
// need structured access to.
type Generic struct {
	Name  string
	Value string
}

func (h *Generic) CanonicName() Name { return Canonic(h.Name) }
func (h *Generic) CompactName() Name { return h.CanonicName() }
func (h *Generic) RenderValue() string { return h.Value }
func (h *Generic) String() string      { return h.Value }

func (h *Generic) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.Value)
	return n, err
}

func (h *Generic) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := *h
	return &h2
}

func (h *Generic) Equal(other Header) bool {
	o, ok := other.(*Generic)
	return ok && o != nil && h.CanonicName() == o.CanonicName() && h.Value == o.Value
}

// Package registry implements the name-indexed algorithm factory described
// in spec.md §4.13: a process-wide default registry plus per-instance
// registries, both mapping a compression method's name or numeric tag to
// the constructors that build its encoder/decoder.
package registry

import (
	"sync"

	"github.com/pkg/errors"
)

// Category distinguishes encoder registrations from decoder registrations;
// a name may be registered once per category.
type Category int

const (
	Decoder Category = iota
	Encoder
)

func (c Category) String() string {
	if c == Encoder {
		return "encoder"
	}
	return "decoder"
}

// ErrAlreadyRegistered is returned by Register when name+category already
// has an entry.
var ErrAlreadyRegistered = errors.New("registry: algorithm already registered")

// ErrNotRegistered is returned by Create for an unknown name.
var ErrNotRegistered = errors.New("registry: algorithm not registered")

// ErrBadNumericTag is returned when a numeric tag does not normalise to a
// known method.
var ErrBadNumericTag = errors.New("registry: unrecognised numeric compression tag")

// Constructor builds a decoder or encoder for the algorithm it was
// registered under. params carries algorithm-specific construction
// arguments (window bits, LZSS mode, salvage/log options); it is passed
// through verbatim from Create.
type Constructor func(params map[string]interface{}) (interface{}, error)

type entry struct {
	name        string
	category    Category
	constructor Constructor
	priority    int
	formatTag   int // numeric low-byte tag this name normalises from, or -1
}

// Registry is a name+category-indexed table of algorithm constructors. The
// zero value is not usable; construct with New.
type Registry struct {
	mu      sync.Mutex
	entries map[string]map[Category]*entry
	byTag   map[int]map[Category]*entry
}

// New returns an empty, ready-to-use per-instance registry for dependency
// injection or test isolation, as called for in spec.md §4.13.
func New() *Registry {
	return &Registry{
		entries: make(map[string]map[Category]*entry),
		byTag:   make(map[int]map[Category]*entry),
	}
}

// Default is the process-wide registry. It is populated by init() in
// builtins.go with the five core algorithms and must not be mutated except
// through Register/Unregister, both of which are mutex-guarded.
var Default = New()

// normaliseTag maps the numeric low-nibble compression tags of spec.md
// §4.13/§6 (0/1/2/3) to their canonical names. Quantum and LZX carry a
// second byte of window-bits parameter that Create receives via params,
// not through the tag itself.
func normaliseTag(tag int) (string, bool) {
	switch tag & 0x0F {
	case 0:
		return "none", true
	case 1:
		return "mszip", true
	case 2:
		return "quantum", true
	case 3:
		return "lzx", true
	default:
		return "", false
	}
}

// Register adds name to the registry under category. priority breaks ties
// when multiple names share the same numeric tag; formatTag, if >= 0,
// records that tag for this entry. Create does not consult it: it maps a
// numeric tag to a name through normaliseTag and looks that name up.
func (r *Registry) Register(name string, category Category, priority, formatTag int, ctor Constructor) error {
	if ctor == nil {
		return errors.Errorf("registry: nil constructor for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if byCat, ok := r.entries[name]; ok {
		if _, exists := byCat[category]; exists {
			return errors.Wrapf(ErrAlreadyRegistered, "%s %q", category, name)
		}
	} else {
		r.entries[name] = make(map[Category]*entry)
	}

	e := &entry{name: name, category: category, constructor: ctor, priority: priority, formatTag: formatTag}
	r.entries[name][category] = e

	if formatTag >= 0 {
		if r.byTag[formatTag] == nil {
			r.byTag[formatTag] = make(map[Category]*entry)
		}
		if existing, ok := r.byTag[formatTag][category]; !ok || priority > existing.priority {
			r.byTag[formatTag][category] = e
		}
	}
	return nil
}

// Unregister removes name's entry for category, if present.
func (r *Registry) Unregister(name string, category Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byCat, ok := r.entries[name]; ok {
		if e, exists := byCat[category]; exists {
			delete(byCat, category)
			if e.formatTag >= 0 {
				if cur, ok := r.byTag[e.formatTag][category]; ok && cur == e {
					delete(r.byTag[e.formatTag], category)
				}
			}
		}
	}
}

// Registered reports whether name has an entry for category.
func (r *Registry) Registered(name string, category Category) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	byCat, ok := r.entries[name]
	if !ok {
		return false
	}
	_, ok = byCat[category]
	return ok
}

// List returns the names registered for category, in no particular order.
func (r *Registry) List(category Category) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for name, byCat := range r.entries {
		if _, ok := byCat[category]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Create builds an instance for nameOrTag: either a registered name
// ("mszip", "lzx", ...) or a numeric low-nibble tag (0/1/2/3), which
// normalises via normaliseTag before lookup.
func (r *Registry) Create(nameOrTag interface{}, category Category, params map[string]interface{}) (interface{}, error) {
	r.mu.Lock()
	var e *entry
	switch v := nameOrTag.(type) {
	case string:
		if byCat, ok := r.entries[v]; ok {
			e = byCat[category]
		}
	case int:
		name, ok := normaliseTag(v)
		if !ok {
			r.mu.Unlock()
			return nil, errors.Wrapf(ErrBadNumericTag, "tag %d", v)
		}
		if byCat, ok := r.entries[name]; ok {
			e = byCat[category]
		}
	default:
		r.mu.Unlock()
		return nil, errors.Errorf("registry: Create requires a string name or int tag, got %T", nameOrTag)
	}
	r.mu.Unlock()

	if e == nil {
		return nil, errors.Wrapf(ErrNotRegistered, "%v (%s)", nameOrTag, category)
	}
	return e.constructor(params)
}

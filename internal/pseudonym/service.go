package pseudonym

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxConflictRetries = 3

// DefaultRetention is how long a mapping stays valid.
const DefaultRetention = 90 * 24 * time.Hour

// Service pseudonymizes payloads for one store. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	store     Store
	detector  *Detector
	gen       Generator
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
	onCreate  func(Category)
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator replaces the random id and pseudonym generator.
func WithGenerator(g Generator) Option { return func(s *Service) { s.gen = g } }

// WithRetention sets the mapping lifetime.
func WithRetention(d time.Duration) Option { return func(s *Service) { s.retention = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// OnCreate registers a callback run for every newly stored mapping.
func OnCreate(fn func(Category)) Option { return func(s *Service) { s.onCreate = fn } }

// NewService builds a service over store using detector's rules.
func NewService(store Store, detector *Detector, opts ...Option) *Service {
	s := &Service{
		store:     store,
		detector:  detector,
		gen:       RandomGenerator{},
		retention: DefaultRetention,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("pseudonym")
	return s
}

// Pseudonymize replaces every detected entity in payload with its session
// pseudonym and returns the rewritten copy plus refs to the mappings used.
// payload may be any JSON-encodable value; it is normalized to maps,
// slices and scalars first. The input is not modified.
func (s *Service) Pseudonymize(ctx context.Context, payload any, sessionID string) (any, []MappingRef, error) {
	tree, err := normalizeTree(payload)
	if err != nil {
		return nil, nil, err
	}

	entities := s.detector.Detect(tree)
	if len(entities) == 0 {
		return tree, nil, nil
	}

	forward := make(map[string]string, len(entities))
	refs := make([]MappingRef, 0, len(entities))
	for _, e := range entities {
		m, err := s.resolve(ctx, sessionID, e)
		if err != nil {
			return nil, nil, err
		}
		// Two categories may claim the same text; the first one wins.
		if _, dup := forward[e.Original]; !dup {
			forward[e.Original] = m.Pseudonym
		}
		refs = append(refs, MappingRef{ID: m.ID, Pseudonym: m.Pseudonym, Category: m.Category})
	}

	r := newReplacer(forward)
	return s.rewrite(tree, "", r, forward), refs, nil
}

func (s *Service) resolve(ctx context.Context, sessionID string, e Entity) (Mapping, error) {
	now := s.now()
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		candidate := Mapping{
			ID:        s.gen.ID(),
			SessionID: sessionID,
			Category:  e.Category,
			Original:  e.Original,
			Pseudonym: s.gen.Pseudonym(e.Category),
			CreatedAt: now,
			ExpiresAt: now.Add(s.retention),
		}
		m, created, err := s.store.GetOrCreate(ctx, candidate)
		if errors.Is(err, ErrConflict) {
			s.logger.Debug("pseudonym collision, regenerating", zap.String("category", string(e.Category)))
			continue
		}
		if err != nil {
			return Mapping{}, fmt.Errorf("resolving %s mapping: %w", e.Category, err)
		}
		if created && s.onCreate != nil {
			s.onCreate(e.Category)
		}
		return m, nil
	}
	return Mapping{}, fmt.Errorf("resolving %s mapping: %w", e.Category, ErrConflict)
}

func (s *Service) rewrite(v any, key string, r *replacer, forward map[string]string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = s.rewrite(child, k, r, forward)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = s.rewrite(child, key, r, forward)
		}
		return out
	case string:
		return r.replace(t)
	default:
		if _, ok := s.detector.FieldCategory(key); ok {
			if str, ok := scalarString(t); ok {
				if p, ok := forward[str]; ok {
					return p
				}
			}
		}
		return v
	}
}

// Depseudonymize restores original values for every pseudonym in text that
// resolves through refs. Unresolvable pseudonyms are left as they are; a
// store failure leaves the text unchanged.
func (s *Service) Depseudonymize(ctx context.Context, text string, refs []MappingRef) string {
	if len(refs) == 0 || text == "" {
		return text
	}
	ids := make([]string, 0, len(refs))
	want := make(map[string]string, len(refs))
	for _, ref := range refs {
		if _, dup := want[ref.ID]; dup {
			continue
		}
		ids = append(ids, ref.ID)
		want[ref.ID] = ref.Pseudonym
	}

	mappings, err := s.store.Get(ctx, ids)
	if err != nil {
		s.logger.Warn("loading mappings failed, returning pseudonymized text", zap.Error(err))
		return text
	}

	reverse := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if want[m.ID] != m.Pseudonym {
			continue
		}
		reverse[m.Pseudonym] = m.Original
	}
	if missing := len(ids) - len(reverse); missing > 0 {
		s.logger.Debug("unresolved pseudonyms left in place", zap.Int("count", missing))
	}
	if len(reverse) == 0 {
		return text
	}
	return newReplacer(reverse).replace(text)
}

// Purge deletes mappings that expired before now.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	return s.store.Purge(ctx, s.now())
}

// DeleteSession forgets every mapping of one session.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	return s.store.DeleteSession(ctx, sessionID)
}

// replacer substitutes whole-token occurrences, longest keys first.
type replacer struct {
	re  *regexp.Regexp
	sub map[string]string
}

func newReplacer(sub map[string]string) *replacer {
	keys := make([]string, 0, len(sub))
	for k := range sub {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	alts := make([]string, len(keys))
	for i, k := range keys {
		alt := regexp.QuoteMeta(k)
		if isWord(k[0]) {
			alt = `\b` + alt
		}
		if isWord(k[len(k)-1]) {
			alt += `\b`
		}
		alts[i] = alt
	}
	return &replacer{re: regexp.MustCompile("(?:" + strings.Join(alts, "|") + ")"), sub: sub}
}

func (r *replacer) replace(s string) string {
	return r.re.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := r.sub[m]; ok {
			return v
		}
		return m
	})
}

func isWord(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// normalizeTree converts payload into maps, slices and scalars via JSON
// unless it already has that shape.
func normalizeTree(payload any) (any, error) {
	switch payload.(type) {
	case nil, string, float64, bool, map[string]any, []any:
		if isTree(payload) {
			return payload, nil
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return tree, nil
}

func isTree(v any) bool {
	switch t := v.(type) {
	case nil, string, float64, bool:
		return true
	case map[string]any:
		for _, child := range t {
			if !isTree(child) {
				return false
			}
		}
		return true
	case []any:
		for _, child := range t {
			if !isTree(child) {
				return false
			}
		}
		return true
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

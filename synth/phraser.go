package synth

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hupe1980/dialogmesh/internal/util"
)

// Phraser picks one of several equivalent phrasings. Selection is cosmetic
// only; every variant of a phrase carries the same information. Seed it for
// reproducible output.
type Phraser struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPhraser creates a Phraser drawing from rnd. A nil rnd seeds from the
// clock.
func NewPhraser(rnd *rand.Rand) *Phraser {
	if rnd == nil {
		now := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(now, now>>1))
	}
	return &Phraser{rnd: rnd}
}

// NewSeededPhraser creates a deterministic Phraser.
func NewSeededPhraser(seed uint64) *Phraser {
	return NewPhraser(rand.New(rand.NewPCG(seed, seed)))
}

// Pick returns one option, or "" without options.
func (p *Phraser) Pick(options ...string) string {
	switch len(options) {
	case 0:
		return ""
	case 1:
		return options[0]
	}
	p.mu.Lock()
	i := p.rnd.IntN(len(options))
	p.mu.Unlock()
	return options[i]
}

// Render picks a template and renders it against data. A broken template
// falls back to its raw text.
func (p *Phraser) Render(data map[string]any, templates ...string) string {
	tmpl := p.Pick(templates...)
	out, err := util.RenderTemplate(tmpl, data)
	if err != nil {
		return tmpl
	}
	return out
}

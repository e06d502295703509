package textnorm

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	text string
	lang Language
}

// Normalizer memoizes Process results. Replays and repeated play presses on
// the same explanation hit the cache instead of re-running every rewrite.
type Normalizer struct {
	cache *lru.Cache[cacheKey, Result]
}

// NewNormalizer returns a Normalizer holding up to size results. A size of
// zero or less disables caching.
func NewNormalizer(size int) (*Normalizer, error) {
	if size <= 0 {
		return &Normalizer{}, nil
	}
	cache, err := lru.New[cacheKey, Result](size)
	if err != nil {
		return nil, fmt.Errorf("create normalizer cache: %w", err)
	}
	return &Normalizer{cache: cache}, nil
}

func (n *Normalizer) Process(text string, lang Language) Result {
	if n == nil || n.cache == nil {
		return Process(text, lang)
	}
	key := cacheKey{text: text, lang: lang}
	if res, ok := n.cache.Get(key); ok {
		return res
	}
	res := Process(text, lang)
	n.cache.Add(key, res)
	return res
}

// Len reports the number of cached results.
func (n *Normalizer) Len() int {
	if n == nil || n.cache == nil {
		return 0
	}
	return n.cache.Len()
}

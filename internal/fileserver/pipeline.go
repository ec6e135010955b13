package fileserver

import (
	"time"
)

// Pipeline resolves a URL path to a cached Blob by first expanding
// aliases to a fixed point, then asking each registered Producer in
// order, then tagging the result with a content type.
type Pipeline struct {
	aliases     *AliasResolver
	producers   []Producer
	contentType *ContentTypeResolver
	cache       *cache
}

// NewPipeline builds a Pipeline with the given max cache age. A maxAge
// of zero disables expiry (entries never go stale).
func NewPipeline(maxAge time.Duration) *Pipeline {
	return &Pipeline{
		aliases:     NewAliasResolver(),
		contentType: DefaultContentTypeResolver(),
		cache:       newCache(maxAge),
	}
}

// Aliases exposes the pipeline's alias resolver for registration.
func (p *Pipeline) Aliases() *AliasResolver { return p.aliases }

// ContentTypes exposes the pipeline's content-type resolver for
// registration.
func (p *Pipeline) ContentTypes() *ContentTypeResolver { return p.contentType }

// AddProducer appends a producer to the chain; producers are tried in
// registration order.
func (p *Pipeline) AddProducer(prod Producer) {
	p.producers = append(p.producers, prod)
}

// Get resolves path to a Blob, or ok=false if no producer claims it.
func (p *Pipeline) Get(path string) (*Blob, bool, error) {
	resolved, err := p.aliases.Resolve(path)
	if err != nil {
		return nil, false, err
	}

	blob, err := p.cache.getOrResolve(resolved, func() (*Blob, error) {
		return p.resolve(resolved)
	})
	if err != nil {
		return nil, false, err
	}
	if blob == nil {
		return nil, false, nil
	}
	return blob, true, nil
}

func (p *Pipeline) resolve(path string) (*Blob, error) {
	for _, prod := range p.producers {
		data, ok, err := prod.Get(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return &Blob{
			Path:        path,
			Data:        data,
			ContentType: p.contentType.Resolve(path),
			GeneratedAt: time.Now(),
		}, nil
	}
	return nil, nil
}

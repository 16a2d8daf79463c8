package faceclient

import (
	"context"
	"fmt"
)

// Match is a recognizer verdict. MemberID is empty when nobody was recognized.
type Match struct {
	MemberID   string
	Confidence float64
}

// Matcher is the subset of Client the provider needs.
type Matcher interface {
	Verify(ctx context.Context, memberID, imageURL string) (*VerifyResult, error)
	Search(ctx context.Context, imageURL string, topK int, threshold float64) (*SearchResult, error)
}

// Provider turns face-service answers into recognition verdicts limited to
// the members in its gallery.
type Provider struct {
	matcher Matcher
	gallery *Gallery
}

func NewProvider(matcher Matcher, gallery *Gallery) *Provider {
	return &Provider{matcher: matcher, gallery: gallery}
}

// Recognize checks whether the face in imageURL belongs to claimedID.
// A member missing from the gallery is never recognized.
func (p *Provider) Recognize(ctx context.Context, claimedID, imageURL string) (Match, error) {
	if claimedID == "" || imageURL == "" {
		return Match{}, fmt.Errorf("member and image url required")
	}
	if !p.gallery.Contains(claimedID) {
		return Match{}, nil
	}
	res, err := p.matcher.Verify(ctx, claimedID, imageURL)
	if err != nil {
		return Match{}, err
	}
	if !res.Verified {
		return Match{Confidence: res.Similarity}, nil
	}
	return Match{MemberID: claimedID, Confidence: res.Similarity}, nil
}

// Identify returns the best gallery member for the face in imageURL.
func (p *Provider) Identify(ctx context.Context, imageURL string) (Match, error) {
	if imageURL == "" {
		return Match{}, fmt.Errorf("image url required")
	}
	res, err := p.matcher.Search(ctx, imageURL, 5, 0)
	if err != nil {
		return Match{}, err
	}
	var best Match
	for _, m := range res.Matches {
		if p.gallery.Contains(m.MemberID) && m.Similarity > best.Confidence {
			best = Match{MemberID: m.MemberID, Confidence: m.Similarity}
		}
	}
	return best, nil
}

func (p *Provider) Gallery() *Gallery { return p.gallery }

package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Document is the stored form of a ledger: profile fields plus one raw
// JSON object per sub-ledger. A nil or JSON null sub-ledger is absent.
type Document struct {
	UID          string
	Username     string
	AvatarURL    string
	ReferralCode string
	ReferredBy   string
	CreatedAt    time.Time
	Mining       json.RawMessage
	Boost        json.RawMessage
	DailyClaim   json.RawMessage
	WatchEarn    json.RawMessage
	Referrals    json.RawMessage
	Version      int64
}

// Decode turns a stored document into a typed ledger. Absent sub-ledgers
// get their defaults here and nowhere else; the result is validated.
func Decode(doc Document) (*Ledger, error) {
	l := &Ledger{
		UID: doc.UID,
		Profile: Profile{
			Username:     doc.Username,
			AvatarURL:    doc.AvatarURL,
			ReferralCode: doc.ReferralCode,
			ReferredBy:   doc.ReferredBy,
			CreatedAt:    doc.CreatedAt,
		},
		Mining:    Mining{state: Idle{}},
		Referrals: Referrals{ReferredUsers: []string{}},
		Version:   doc.Version,
	}

	parts := []struct {
		name string
		raw  json.RawMessage
		dst  any
	}{
		{"mining", doc.Mining, &l.Mining},
		{"boost", doc.Boost, &l.Boost},
		{"dailyClaim", doc.DailyClaim, &l.DailyClaim},
		{"watchEarn", doc.WatchEarn, &l.WatchEarn},
		{"referrals", doc.Referrals, &l.Referrals},
	}
	for _, p := range parts {
		if absent(p.raw) {
			continue
		}
		if err := json.Unmarshal(p.raw, p.dst); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidLedger, p.name, err)
		}
	}

	if l.Referrals.ReferredUsers == nil {
		l.Referrals.ReferredUsers = []string{}
	}
	if l.Boost.LastReset != nil {
		t := l.Boost.LastReset.UTC()
		l.Boost.LastReset = &t
	}
	if l.DailyClaim.LastClaim != nil {
		t := l.DailyClaim.LastClaim.UTC()
		l.DailyClaim.LastClaim = &t
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Encode turns a ledger into its stored form
func Encode(l *Ledger) (Document, error) {
	doc := Document{
		UID:          l.UID,
		Username:     l.Profile.Username,
		AvatarURL:    l.Profile.AvatarURL,
		ReferralCode: l.Profile.ReferralCode,
		ReferredBy:   l.Profile.ReferredBy,
		CreatedAt:    l.Profile.CreatedAt,
		Version:      l.Version,
	}

	var err error
	if doc.Mining, err = json.Marshal(l.Mining); err != nil {
		return Document{}, fmt.Errorf("failed to encode mining: %w", err)
	}
	if doc.Boost, err = json.Marshal(l.Boost); err != nil {
		return Document{}, fmt.Errorf("failed to encode boost: %w", err)
	}
	if doc.DailyClaim, err = json.Marshal(l.DailyClaim); err != nil {
		return Document{}, fmt.Errorf("failed to encode daily claim: %w", err)
	}
	if doc.WatchEarn, err = json.Marshal(l.WatchEarn); err != nil {
		return Document{}, fmt.Errorf("failed to encode watch earn: %w", err)
	}
	if doc.Referrals, err = json.Marshal(l.Referrals); err != nil {
		return Document{}, fmt.Errorf("failed to encode referrals: %w", err)
	}
	return doc, nil
}

func absent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

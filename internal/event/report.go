package event

import (
	"github.com/nbd-wtf/go-nostr"
)

// ReportType is the NIP-56 report category
type ReportType string

const (
	ReportExplicit      ReportType = "explicit"
	ReportIllegal       ReportType = "illegal"
	ReportSpam          ReportType = "spam"
	ReportImpersonation ReportType = "impersonation"
	ReportNudity        ReportType = "nudity"
	ReportProfanity     ReportType = "profanity"
	ReportMalware       ReportType = "malware"
	ReportOther         ReportType = "other"
)

// ReportTarget is one reported note or user
type ReportTarget struct {
	Key  string
	Type ReportType
}

func parseReport(ev *nostr.Event) *Report {
	r := &Report{
		Notes:  make([]ReportTarget, 0),
		Users:  make([]ReportTarget, 0),
		Reason: ev.Content,
	}

	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[1] == "" {
			continue
		}
		rt := ReportOther
		if len(tag) >= 3 && tag[2] != "" {
			rt = ReportType(tag[2])
		}

		switch tag[0] {
		case "e":
			r.Notes = append(r.Notes, ReportTarget{Key: tag[1], Type: rt})
		case "p":
			r.Users = append(r.Users, ReportTarget{Key: tag[1], Type: rt})
		}
	}

	return r
}

// NewNoteReport builds an unsigned report against a note and its author
func NewNoteReport(target Ref, rt ReportType, reason string) nostr.Event {
	tags := nostr.Tags{{"e", target.ID, string(rt)}}
	if target.PubKey != "" {
		tags = append(tags, nostr.Tag{"p", target.PubKey, string(rt)})
	}
	return nostr.Event{
		Kind:      int(KindReport),
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   reason,
	}
}

// NewUserReport builds an unsigned report against a user
func NewUserReport(pubkey string, rt ReportType, reason string) nostr.Event {
	return nostr.Event{
		Kind:      int(KindReport),
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"p", pubkey, string(rt)}},
		Content:   reason,
	}
}

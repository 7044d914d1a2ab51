package event

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

var invoiceAmountRe = regexp.MustCompile(`lnbc(\d+)([munp]?)`)

func parseZapRequest(ev *nostr.Event) *ZapRequest {
	zr := &ZapRequest{
		Targets:         tagValues(ev, "e"),
		TargetAddresses: addressValues(ev),
		Recipient:       first(tagValues(ev, "p")),
	}

	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "relays":
			zr.Relays = append(zr.Relays, tag[1:]...)
		case "amount":
			zr.AmountMsats = parseInt(tag[1])
		}
	}

	return zr
}

func parseZap(ev *nostr.Event) *Zap {
	z := &Zap{
		Targets:   tagValues(ev, "e"),
		Recipient: first(tagValues(ev, "p")),
	}

	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "description":
			// The description tag carries the zap request (kind 9734)
			z.Request = parseEmbeddedRequest(tag[1])
		case "bolt11":
			if amount, err := ParseInvoiceAmount(tag[1]); err == nil {
				z.AmountSats = amount
			}
		}
	}

	// Fall back to the request's amount tag when the invoice had none
	if z.AmountSats == 0 && z.Request != nil {
		if msats := parseZapRequest(z.Request).AmountMsats; msats > 0 {
			z.AmountSats = msats / 1000
		}
	}

	return z
}

func parseEmbeddedRequest(desc string) *nostr.Event {
	if !gjson.Valid(desc) || gjson.Get(desc, "kind").Int() != int64(KindZapRequest) {
		return nil
	}

	var req nostr.Event
	if err := json.Unmarshal([]byte(desc), &req); err != nil {
		return nil
	}
	if req.ID == "" || req.PubKey == "" {
		return nil
	}
	return &req
}

// Sender returns the pubkey that paid the zap, or "" if the request is missing
func (z *Zap) Sender() string {
	if z.Request == nil {
		return ""
	}
	return z.Request.PubKey
}

// ParseInvoiceAmount extracts the amount in satoshis from a bolt11 invoice.
// Only the human readable prefix is read; the invoice is not validated.
func ParseInvoiceAmount(invoice string) (int64, error) {
	matches := invoiceAmountRe.FindStringSubmatch(invoice)
	if len(matches) < 2 {
		return 0, fmt.Errorf("could not parse invoice amount")
	}

	amount, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, err
	}

	multiplier := ""
	if len(matches) >= 3 {
		multiplier = matches[2]
	}

	switch multiplier {
	case "m": // millibitcoin = 100,000 sats
		amount = amount * 100000
	case "u": // microbitcoin = 100 sats
		amount = amount * 100
	case "n": // nanobitcoin = 0.1 sats
		amount = amount / 10
	case "p": // picobitcoin = 0.0001 sats
		amount = amount / 10000
	default: // 1 bitcoin = 100,000,000 sats
		amount = amount * 100000000
	}

	return amount, nil
}

// NewZapRequest builds an unsigned zap request for a note (target.ID set) or a user
func NewZapRequest(target Ref, relays []string, amountMsats int64, message string) nostr.Event {
	tags := target.tags()
	if len(relays) > 0 {
		tags = append(tags, append(nostr.Tag{"relays"}, relays...))
	}
	if amountMsats > 0 {
		tags = append(tags, nostr.Tag{"amount", strconv.FormatInt(amountMsats, 10)})
	}
	return nostr.Event{
		Kind:      int(KindZapRequest),
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   message,
	}
}

// PayInvoiceRequest is the plaintext of a wallet connect pay request
func PayInvoiceRequest(invoice string) string {
	data, _ := json.Marshal(map[string]any{
		"method": "pay_invoice",
		"params": map[string]string{"invoice": invoice},
	})
	return string(data)
}

// NewZapPaymentRequest builds an unsigned wallet connect request. The content
// must already be encrypted to the wallet.
func NewZapPaymentRequest(ciphertext string, walletPubKey string) nostr.Event {
	return nostr.Event{
		Kind:      int(KindZapPaymentRequest),
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"p", walletPubKey}},
		Content:   ciphertext,
	}
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

package account

import (
	"maps"
	"slices"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/quartz/internal/config"
	"github.com/sandwichfarm/quartz/internal/notify"
)

// Policy holds the trust thresholds
type Policy struct {
	// ReportThreshold is how many followed reporters hide a user or note
	ReportThreshold int
	// BoostWindow blocks reposting the same note twice within the window
	BoostWindow time.Duration
	// BatchWindow coalesces notifications
	BatchWindow time.Duration
}

// DefaultPolicy returns the standard thresholds
func DefaultPolicy() Policy {
	return Policy{
		ReportThreshold: 5,
		BoostWindow:     5 * time.Minute,
		BatchWindow:     notify.DefaultWindow,
	}
}

// PolicyFromConfig converts the policy configuration section
func PolicyFromConfig(cfg *config.Policy) Policy {
	return Policy{
		ReportThreshold: cfg.ReportThreshold,
		BoostWindow:     time.Duration(cfg.BoostWindowSeconds) * time.Second,
		BatchWindow:     time.Duration(cfg.BatchWindowMs) * time.Millisecond,
	}.withDefaults()
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.ReportThreshold <= 0 {
		p.ReportThreshold = def.ReportThreshold
	}
	if p.BoostWindow <= 0 {
		p.BoostWindow = def.BoostWindow
	}
	if p.BatchWindow <= 0 {
		p.BatchWindow = def.BatchWindow
	}
	return p
}

// WalletConnect is the wallet service zap payments are sent to
type WalletConnect struct {
	PubKey   string `yaml:"pubkey" json:"pubkey"`
	RelayURL string `yaml:"relay" json:"relay"`
}

// Settings is the durable part of an account
type Settings struct {
	FollowingChannels       []string            `yaml:"following_channels" json:"following_channels"`
	HiddenUsers             []string            `yaml:"hidden_users" json:"hidden_users"`
	LocalRelays             []config.RelaySetup `yaml:"local_relays" json:"local_relays"`
	DontTranslateFrom       []string            `yaml:"dont_translate_from" json:"dont_translate_from"`
	LanguagePreferences     map[string]string   `yaml:"language_preferences" json:"language_preferences"`
	TranslateTo             string              `yaml:"translate_to" json:"translate_to"`
	ZapAmountChoices        []int64             `yaml:"zap_amount_choices" json:"zap_amount_choices"`
	ZapPaymentRequest       *WalletConnect      `yaml:"zap_payment_request,omitempty" json:"zap_payment_request,omitempty"`
	HideDeleteRequestDialog bool                `yaml:"hide_delete_request_dialog" json:"hide_delete_request_dialog"`
	HideBlockAlertDialog    bool                `yaml:"hide_block_alert_dialog" json:"hide_block_alert_dialog"`
	BackupContactList       *nostr.Event        `yaml:"backup_contact_list,omitempty" json:"backup_contact_list,omitempty"`
}

// DefaultSettings returns the settings of a fresh account
func DefaultSettings(cfg *config.Config) Settings {
	translateTo := cfg.Account.TranslateTo
	if translateTo == "" {
		translateTo = "en"
	}
	return Settings{
		FollowingChannels:   slices.Clone(cfg.Account.DefaultChannels),
		HiddenUsers:         []string{},
		LocalRelays:         slices.Clone(cfg.Relays.Local),
		DontTranslateFrom:   []string{translateTo},
		LanguagePreferences: map[string]string{},
		TranslateTo:         translateTo,
		ZapAmountChoices:    slices.Clone(cfg.Account.ZapAmountChoices),
	}
}

func (s Settings) clone() Settings {
	out := s
	out.FollowingChannels = slices.Clone(s.FollowingChannels)
	out.HiddenUsers = slices.Clone(s.HiddenUsers)
	out.LocalRelays = make([]config.RelaySetup, 0, len(s.LocalRelays))
	for _, r := range s.LocalRelays {
		r.FeedTypes = slices.Clone(r.FeedTypes)
		out.LocalRelays = append(out.LocalRelays, r)
	}
	out.DontTranslateFrom = slices.Clone(s.DontTranslateFrom)
	out.LanguagePreferences = maps.Clone(s.LanguagePreferences)
	if out.LanguagePreferences == nil {
		out.LanguagePreferences = map[string]string{}
	}
	out.ZapAmountChoices = slices.Clone(s.ZapAmountChoices)
	if s.ZapPaymentRequest != nil {
		wc := *s.ZapPaymentRequest
		out.ZapPaymentRequest = &wc
	}
	return out
}

// State is an immutable snapshot of the account for observers
type State struct {
	PubKey          string
	Writeable       bool
	Settings        Settings
	TransientHidden []string
	Following       map[string]struct{}
	FollowingTags   map[string]struct{}
}

// Settings returns a copy of the durable settings
func (a *Account) Settings() Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.clone()
}

// State returns a snapshot of the account
func (a *Account) State() State {
	a.mu.RLock()
	settings := a.settings.clone()
	transient := slices.Sorted(maps.Keys(a.transientHidden))
	a.mu.RUnlock()

	return State{
		PubKey:          a.pubkey,
		Writeable:       a.IsWriteable(),
		Settings:        settings,
		TransientHidden: transient,
		Following:       a.FollowingKeySet(),
		FollowingTags:   a.FollowingTagSet(),
	}
}

// update applies fn to the settings under the lock and notifies observers
func (a *Account) update(fn func(s *Settings)) {
	a.mu.Lock()
	fn(&a.settings)
	a.mu.Unlock()
	a.changed()
}

func withItem(values []string, v string) []string {
	if slices.Contains(values, v) {
		return values
	}
	return append(values, v)
}

func withoutItem(values []string, v string) []string {
	return slices.DeleteFunc(values, func(x string) bool { return x == v })
}

// SetHideDeleteRequestDialog remembers that the delete confirmation was dismissed
func (a *Account) SetHideDeleteRequestDialog() {
	a.update(func(s *Settings) { s.HideDeleteRequestDialog = true })
}

// SetHideBlockAlertDialog remembers that the block alert was dismissed
func (a *Account) SetHideBlockAlertDialog() {
	a.update(func(s *Settings) { s.HideBlockAlertDialog = true })
}

// ChangeZapAmounts replaces the zap amount choices
func (a *Account) ChangeZapAmounts(amounts []int64) {
	a.update(func(s *Settings) { s.ZapAmountChoices = slices.Clone(amounts) })
}

// ChangeZapPaymentRequest sets or clears (nil) the wallet connect service
func (a *Account) ChangeZapPaymentRequest(wc *WalletConnect) {
	a.update(func(s *Settings) {
		if wc == nil {
			s.ZapPaymentRequest = nil
			return
		}
		copied := *wc
		s.ZapPaymentRequest = &copied
	})
}

// updateBackupContactList keeps a copy of the newest non-empty contact list
func (a *Account) updateBackupContactList() {
	latest := a.UserProfile().LatestContactList()
	if latest == nil || len(a.FollowingKeySet()) == 0 {
		return
	}

	a.mu.Lock()
	if a.settings.BackupContactList != nil && a.settings.BackupContactList.ID == latest.ID {
		a.mu.Unlock()
		return
	}
	a.settings.BackupContactList = latest
	a.mu.Unlock()

	a.saveable.Invalidate()
}

package account

// AddDontTranslateFrom marks a language as understood
func (a *Account) AddDontTranslateFrom(language string) {
	a.updateLanguages(func(s *Settings) { s.DontTranslateFrom = withItem(s.DontTranslateFrom, language) })
}

// UpdateTranslateTo sets the translation target language
func (a *Account) UpdateTranslateTo(language string) {
	a.updateLanguages(func(s *Settings) { s.TranslateTo = language })
}

// Prefer remembers which side of a source/target pair the user prefers
// to read
func (a *Account) Prefer(source, target, preference string) {
	a.mu.Lock()
	if a.settings.LanguagePreferences == nil {
		a.settings.LanguagePreferences = make(map[string]string)
	}
	a.settings.LanguagePreferences[source+","+target] = preference
	a.mu.Unlock()
	a.saveable.Invalidate()
}

// PreferenceBetween returns the remembered preference, or ""
func (a *Account) PreferenceBetween(source, target string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.LanguagePreferences[source+","+target]
}

func (a *Account) updateLanguages(fn func(s *Settings)) {
	a.mu.Lock()
	fn(&a.settings)
	a.mu.Unlock()
	a.liveLanguages.Invalidate()
	a.saveable.Invalidate()
}

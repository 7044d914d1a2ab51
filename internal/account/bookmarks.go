package account

import (
	"fmt"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
)

// bookmarkKey is the id or address a note is bookmarked under
func bookmarkKey(note *cache.Note) (string, bool) {
	if addr := note.Address(); addr != nil {
		return addr.String(), true
	}
	return note.Key(), false
}

// PublicBookmarks returns the clear-text side of the account's bookmark list
func (a *Account) PublicBookmarks() event.Bookmarks {
	latest := a.UserProfile().LatestBookmarkList()
	if latest == nil {
		return event.Bookmarks{}
	}
	bl, ok := event.Parse(latest).(*event.BookmarkList)
	if !ok {
		return event.Bookmarks{}
	}
	return bl.Public()
}

// PrivateBookmarks decrypts the private side of the account's bookmark list
func (a *Account) PrivateBookmarks() (event.Bookmarks, error) {
	if a.signer == nil {
		return event.Bookmarks{}, ErrReadOnly
	}
	latest := a.UserProfile().LatestBookmarkList()
	if latest == nil || latest.Content == "" {
		return event.Bookmarks{}, nil
	}

	plaintext, err := a.signer.Decrypt(latest.Content, a.pubkey)
	if err != nil {
		return event.Bookmarks{}, fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	return event.DecodePrivateBookmarks(plaintext)
}

// IsInPublicBookmarks reports whether the note is publicly bookmarked
func (a *Account) IsInPublicBookmarks(note *cache.Note) bool {
	if !a.IsWriteable() {
		return false
	}
	key, _ := bookmarkKey(note)
	return a.PublicBookmarks().Has(key)
}

// IsInPrivateBookmarks reports whether the note is privately bookmarked
func (a *Account) IsInPrivateBookmarks(note *cache.Note) bool {
	private, err := a.PrivateBookmarks()
	if err != nil {
		return false
	}
	key, _ := bookmarkKey(note)
	return private.Has(key)
}

// AddPublicBookmark bookmarks a note in clear text
func (a *Account) AddPublicBookmark(note *cache.Note) {
	a.changeBookmarks("add public bookmark", note, func(public, private event.Bookmarks, key string, isAddr bool) (event.Bookmarks, event.Bookmarks) {
		return public.With(key, isAddr), private
	})
}

// RemovePublicBookmark removes a clear-text bookmark
func (a *Account) RemovePublicBookmark(note *cache.Note) {
	a.changeBookmarks("remove public bookmark", note, func(public, private event.Bookmarks, key string, isAddr bool) (event.Bookmarks, event.Bookmarks) {
		return public.Without(key, isAddr), private
	})
}

// AddPrivateBookmark bookmarks a note inside the encrypted content
func (a *Account) AddPrivateBookmark(note *cache.Note) {
	a.changeBookmarks("add private bookmark", note, func(public, private event.Bookmarks, key string, isAddr bool) (event.Bookmarks, event.Bookmarks) {
		return public, private.With(key, isAddr)
	})
}

// RemovePrivateBookmark removes an encrypted bookmark
func (a *Account) RemovePrivateBookmark(note *cache.Note) {
	a.changeBookmarks("remove private bookmark", note, func(public, private event.Bookmarks, key string, isAddr bool) (event.Bookmarks, event.Bookmarks) {
		return public, private.Without(key, isAddr)
	})
}

// changeBookmarks rebuilds the whole bookmark list. The private side is
// re-encrypted on every change. When the existing private side cannot be
// decrypted the change is skipped rather than overwriting it.
func (a *Account) changeBookmarks(op string, note *cache.Note, change func(public, private event.Bookmarks, key string, isAddr bool) (event.Bookmarks, event.Bookmarks)) {
	if !a.writeable(op) {
		return
	}

	private, err := a.PrivateBookmarks()
	if err != nil {
		a.logger.LogMutationSkipped(op, err.Error())
		return
	}
	key, isAddr := bookmarkKey(note)
	public, private := change(a.PublicBookmarks(), private, key, isAddr)

	content := ""
	if len(private.Events)+len(private.Users)+len(private.Addresses) > 0 {
		plaintext, err := event.EncodePrivateBookmarks(private)
		if err != nil {
			a.logger.LogMutationSkipped(op, err.Error())
			return
		}
		content, err = a.signer.Encrypt(plaintext, a.pubkey)
		if err != nil {
			a.logger.LogMutationSkipped(op, err.Error())
			return
		}
	}

	a.publish(op, event.NewBookmarkList(public, content))
}

package notify

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/backdesk/backdesk/internal/api"
	"github.com/backdesk/backdesk/internal/logging"
	"github.com/backdesk/backdesk/internal/model"
)

// PrefsRemote is the server surface for the preference record.
type PrefsRemote interface {
	Preferences(ctx context.Context) (model.Preferences, error)
	UpdatePreferences(ctx context.Context, patch model.PreferencesPatch) (model.Preferences, error)
}

// PrefsMirror persists the last-known record for offline sessions.
type PrefsMirror interface {
	SavePreferences(ctx context.Context, prefs model.Preferences) error
	GetPreferences(ctx context.Context) (*model.Preferences, error)
}

// Prefs gates user-visible effects (toast, sound) of ingested events
// by category. Ingestion into the store is never gated; only the toast
// controller consults this engine before acting.
type Prefs struct {
	mu      sync.Mutex
	current model.Preferences
	remote  PrefsRemote
	mirror  PrefsMirror
	logger  *logrus.Logger
}

// NewPrefs creates a preference engine that starts from the default
// record (everything enabled) until Load succeeds. mirror and logger
// may be nil.
func NewPrefs(remote PrefsRemote, mirror PrefsMirror, logger *logrus.Logger) *Prefs {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Prefs{
		current: model.DefaultPreferences(),
		remote:  remote,
		mirror:  mirror,
		logger:  logger,
	}
}

// Load fetches the current record, once per session. When the server
// has no record yet (404), the defaults stand. On transport failure the
// last mirrored record is used for the session and the error is
// returned so the caller can decide on messaging.
func (p *Prefs) Load(ctx context.Context) error {
	prefs, err := p.remote.Preferences(ctx)
	if err != nil {
		if api.IsNotFound(err) {
			p.setCurrent(model.DefaultPreferences())
			return nil
		}
		if p.mirror != nil {
			if mirrored, mErr := p.mirror.GetPreferences(ctx); mErr == nil && mirrored != nil {
				p.setCurrent(*mirrored)
			}
		}
		return err
	}

	p.setCurrent(prefs)
	p.mirrorSave(prefs)
	return nil
}

// Update merges the given fields into the record and persists remotely
// with partial-patch semantics: unspecified fields are unchanged. On
// failure the local record is untouched (no optimistic update applies
// to this class).
func (p *Prefs) Update(ctx context.Context, patch model.PreferencesPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	updated, err := p.remote.UpdatePreferences(ctx, patch)
	if err != nil {
		return err
	}

	p.setCurrent(updated)
	p.mirrorSave(updated)
	return nil
}

// Current returns the record in effect for this session.
func (p *Prefs) Current() model.Preferences {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Allows reports whether notifications of the given type may trigger
// user-visible effects.
func (p *Prefs) Allows(t model.NotificationType) bool {
	return p.Current().Allows(t)
}

// SoundEnabled reports whether an allowed notification also rings the
// terminal bell.
func (p *Prefs) SoundEnabled() bool {
	return p.Current().SoundEnabled
}

func (p *Prefs) setCurrent(prefs model.Preferences) {
	p.mu.Lock()
	p.current = prefs
	p.mu.Unlock()
}

func (p *Prefs) mirrorSave(prefs model.Preferences) {
	if p.mirror == nil {
		return
	}
	if err := p.mirror.SavePreferences(context.Background(), prefs); err != nil {
		p.logger.WithError(err).Warn("mirroring preferences failed")
	}
}

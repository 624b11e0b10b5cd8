package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Verto/pkg/logger"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/mapstructure"
	"github.com/rjeczalik/notify"
)

var log = logger.Get("Settings")

// Store holds the live user preferences. Reads return copies, and
// conversion handlers capture a Snapshot, so a reload or edit of the store
// never affects a conversion that is already in progress.
type Store struct {
	*sync.RWMutex
	path     string
	prefs    Preferences
	validate *validator.Validate
}

// NewStore creates a store holding the default preferences. If path is
// non-empty, Load can be used to read preferences from that file.
func NewStore(path string) *Store {
	return &Store{
		RWMutex:  &sync.RWMutex{},
		path:     path,
		prefs:    Defaults(),
		validate: validator.New(),
	}
}

// Load reads the preference document from the store's path, layering it over
// the defaults. A missing file is not an error; the defaults are kept.
func (store *Store) Load() error {
	if store.path == "" {
		return nil
	}

	if _, err := os.Stat(store.path); errors.Is(err, os.ErrNotExist) {
		log.Emit(logger.WARNING, "Preferences file %s does not exist, using defaults\n", store.path)
		return nil
	}

	prefs := Defaults()
	if err := cleanenv.ReadConfig(store.path, &prefs); err != nil {
		return fmt.Errorf("failed to read preferences from %s: %w", store.path, err)
	}

	if err := store.validate.Struct(prefs); err != nil {
		return fmt.Errorf("preferences from %s are invalid: %w", store.path, err)
	}

	store.Lock()
	store.prefs = prefs
	store.Unlock()

	log.Emit(logger.SUCCESS, "Loaded preferences from %s\n", store.path)
	return nil
}

// Current returns a copy of the live preferences.
func (store *Store) Current() Preferences {
	store.RLock()
	defer store.RUnlock()

	return store.prefs.Clone()
}

// Snapshot captures the live preferences for use by a single conversion
// handler.
func (store *Store) Snapshot(forceNoTrim bool) Snapshot {
	store.RLock()
	defer store.RUnlock()

	return NewSnapshot(store.prefs, forceNoTrim)
}

// Update applies the mutation provided to a copy of the live preferences, and
// stores the result if it passes validation.
func (store *Store) Update(mutate func(*Preferences)) error {
	store.Lock()
	defer store.Unlock()

	next := store.prefs.Clone()
	mutate(&next)
	if err := store.validate.Struct(next); err != nil {
		return fmt.Errorf("updated preferences are invalid: %w", err)
	}

	store.prefs = next
	return nil
}

// Watch reloads the preferences whenever the backing file is written. This
// method blocks until the context provided is cancelled.
func (store *Store) Watch(ctx context.Context) error {
	if store.path == "" {
		return errors.New("cannot watch preferences: store has no backing file")
	}

	target, err := filepath.Abs(store.path)
	if err != nil {
		return fmt.Errorf("failed to resolve preferences path: %w", err)
	}

	// The directory is watched rather than the file as many editors
	// replace the file on save, which would otherwise end the watch.
	events := make(chan notify.EventInfo, 4)
	if err := notify.Watch(filepath.Dir(target), events, notify.Write, notify.Create, notify.Rename); err != nil {
		return fmt.Errorf("failed to watch preferences directory: %w", err)
	}
	defer notify.Stop(events)

	log.Emit(logger.NEW, "Watching %s for preference changes\n", store.path)
	for {
		select {
		case ev := <-events:
			if filepath.Clean(ev.Path()) != target {
				continue
			}

			log.Emit(logger.DEBUG, "Preferences file event %s, reloading\n", ev.Event())
			if err := store.Load(); err != nil {
				log.Emit(logger.ERROR, "Failed to reload preferences: %v\n", err)
			}
		case <-ctx.Done():
			log.Emit(logger.STOP, "Preference watcher closed\n")
			return nil
		}
	}
}

// WithOverrides returns a copy of the preferences provided with the overrides
// decoded over the top. Keys use the YAML field names, nested maps address
// nested sections, and values are weakly typed (so "false" decodes in to a
// bool). Unknown keys are an error.
func WithOverrides(prefs Preferences, overrides map[string]any) (Preferences, error) {
	out := prefs.Clone()
	if len(overrides) == 0 {
		return out, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &out,
	})
	if err != nil {
		return prefs, fmt.Errorf("failed to create override decoder: %w", err)
	}

	if err := decoder.Decode(overrides); err != nil {
		return prefs, fmt.Errorf("preference overrides malformed: %w", err)
	}

	if err := validator.New().Struct(out); err != nil {
		return prefs, fmt.Errorf("preference overrides invalid: %w", err)
	}

	return out, nil
}

// ParseOverrides converts a list of "dotted.key=value" strings in to the
// nested map expected by WithOverrides.
func ParseOverrides(pairs []string) (map[string]any, error) {
	out := make(map[string]any)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("override %q must be in the form key=value", pair)
		}

		path := strings.Split(strings.TrimSpace(key), ".")
		node := out
		for _, segment := range path[:len(path)-1] {
			next, ok := node[segment].(map[string]any)
			if !ok {
				next = make(map[string]any)
				node[segment] = next
			}

			node = next
		}

		node[path[len(path)-1]] = value
	}

	return out, nil
}

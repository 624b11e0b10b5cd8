package settings

// Snapshot is an immutable copy of the user's preferences, taken at the
// time a conversion handler is created. Edits made to the live preferences
// after the snapshot is captured have no effect on it.
type Snapshot struct {
	prefs Preferences

	// forceNoTrim disables trimming for the owner of this
	// snapshot only; the live preferences are unaffected.
	forceNoTrim bool
}

// NewSnapshot captures a deep copy of the preferences provided.
func NewSnapshot(prefs Preferences, forceNoTrim bool) Snapshot {
	return Snapshot{prefs: prefs.Clone(), forceNoTrim: forceNoTrim}
}

// Preferences returns a deep copy of the captured preferences; mutating
// the result does not alter the snapshot.
func (s Snapshot) Preferences() Preferences { return s.prefs.Clone() }

func (s Snapshot) Video() VideoPreferences {
	return s.Preferences().Video
}

func (s Snapshot) Audio() AudioPreferences {
	return s.Preferences().Audio
}

func (s Snapshot) Image() ImagePreferences       { return s.prefs.Image }
func (s Snapshot) Hardware() HardwarePreferences { return s.prefs.Hardware }
func (s Snapshot) Metadata() MetadataPreferences { return s.prefs.Metadata }
func (s Snapshot) Engine() EnginePreferences     { return s.prefs.Engine }
func (s Snapshot) Container() string             { return s.prefs.Container }
func (s Snapshot) ForceNoTrim() bool             { return s.forceNoTrim }

// Trim returns the trim preferences, taking in to account whether this
// snapshot has been forced to skip trimming.
func (s Snapshot) Trim() TrimPreferences {
	trim := s.prefs.Trim
	if s.forceNoTrim || trim.Mode == "" {
		trim.Mode = TrimNone
	}

	return trim
}

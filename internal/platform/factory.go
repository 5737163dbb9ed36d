package platform

import "fmt"

// constructors maps platform keys to adapter constructors, mirroring the
// store's driver factory.
var constructors = map[string]func(Settings) Adapter{
	"instagram": func(s Settings) Adapter { return NewInstagramAdapter(s) },
	"twitter":   func(s Settings) Adapter { return NewTwitterAdapter(s) },
	"linkedin":  func(s Settings) Adapter { return NewLinkedInAdapter(s) },
	"facebook":  func(s Settings) Adapter { return NewFacebookAdapter(s) },
	"youtube":   func(s Settings) Adapter { return NewYouTubeAdapter(s) },
	"tiktok":    func(s Settings) Adapter { return NewTikTokAdapter(s) },
}

// NewAdapter builds the adapter for a platform key.
func NewAdapter(platform string, settings Settings) (Adapter, error) {
	constructor, exists := constructors[platform]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return constructor(settings), nil
}

// SupportedPlatforms lists every platform this build can speak, configured
// or not.
func SupportedPlatforms() []string {
	keys := make([]string, 0, len(constructors))
	for key := range constructors {
		keys = append(keys, key)
	}
	return keys
}

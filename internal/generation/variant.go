package generation

import (
	"fmt"
	"strings"

	"genqueue/internal/api"
	"genqueue/internal/config"
	"genqueue/internal/poller"
)

// Variant captures what differs between the image and video queues.
type Variant struct {
	Kind api.MediaKind
	// GenerationType is the completed-listing value that belongs to this variant.
	GenerationType string
	Policy         poller.Policy
}

// Name is the variant's namespace and display label.
func (v Variant) Name() string {
	return string(v.Kind)
}

// ImageVariant uses geometric backoff.
func ImageVariant(cfg *config.Config) Variant {
	return Variant{
		Kind:           api.KindImage,
		GenerationType: "image",
		Policy:         poller.PolicyFromConfig(cfg.Poll, false),
	}
}

// VideoVariant polls at a fixed cadence.
func VideoVariant(cfg *config.Config) Variant {
	return Variant{
		Kind:           api.KindVideo,
		GenerationType: "video",
		Policy:         poller.PolicyFromConfig(cfg.Poll, true),
	}
}

// VariantFor resolves a --kind flag value.
func VariantFor(cfg *config.Config, kind string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "image", "images":
		return ImageVariant(cfg), nil
	case "video", "videos":
		return VideoVariant(cfg), nil
	default:
		return Variant{}, fmt.Errorf("unknown kind %q (want image or video)", kind)
	}
}

// Package profile resolves a quality tier into concrete encoder parameters.
package profile

import (
	"strings"

	"mediaforge/internal/models"
)

type tierValues struct {
	imageQuality   int
	videoCRF       int
	videoThreshold int64
	audioBitrate   string
	audioBPS       int64
	pdfSetting     string
}

var tiers = map[models.Tier]tierValues{
	models.TierLight: {
		imageQuality:   90,
		videoCRF:       20,
		videoThreshold: 3_000_000,
		audioBitrate:   "192k",
		audioBPS:       192_000,
		pdfSetting:     "/printer",
	},
	models.TierBalanced: {
		imageQuality:   75,
		videoCRF:       26,
		videoThreshold: 1_500_000,
		audioBitrate:   "128k",
		audioBPS:       128_000,
		pdfSetting:     "/ebook",
	},
	models.TierExtreme: {
		imageQuality:   50,
		videoCRF:       32,
		videoThreshold: 800_000,
		audioBitrate:   "96k",
		audioBPS:       96_000,
		pdfSetting:     "/screen",
	},
}

// ParseTier never fails: anything outside the three known tiers is balanced.
func ParseTier(s string) models.Tier {
	t := models.Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tiers[t]; ok {
		return t
	}
	return models.TierBalanced
}

// Resolve returns the profile for (category, tier). Fields that do not apply to
// the category are left zero.
func Resolve(category models.Category, tier models.Tier) models.ToolProfile {
	tier = ParseTier(string(tier))
	v := tiers[tier]

	p := models.ToolProfile{Category: category, Tier: tier}
	switch category {
	case models.CategoryImage:
		p.Quality = v.imageQuality
	case models.CategoryVideo:
		p.CRF = v.videoCRF
		p.BitrateThreshold = v.videoThreshold
	case models.CategoryAudio:
		p.AudioBitrate = v.audioBitrate
		p.BitrateThreshold = v.audioBPS
	case models.CategoryPDF:
		p.PDFSetting = v.pdfSetting
	}
	return p
}

package joberror

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"mediaforge/internal/models"
)

var supported = []language.Tag{
	language.English,
	language.SimplifiedChinese,
}

var matcher = language.NewMatcher(supported)

var categoryMessages = map[models.ErrorKind][2]string{
	models.KindUnsupportedFormat:   {"Unsupported file format", "不支持的文件格式"},
	models.KindToolMissing:         {"Required tool not found", "找不到处理工具"},
	models.KindToolExecutionFailed: {"Processing failed", "处理失败"},
	models.KindNoImprovement:       {"File is already at its optimal size", "该文件已达到最优体积"},
	models.KindIOFailure:           {"File read/write failed", "文件读写失败"},
	models.KindInvalidRequest:      {"Invalid request", "请求无效"},
}

func init() {
	for kind, msgs := range categoryMessages {
		key := catalogKey(kind)
		if err := message.SetString(language.English, key, msgs[0]); err != nil {
			panic(err)
		}
		if err := message.SetString(language.SimplifiedChinese, key, msgs[1]); err != nil {
			panic(err)
		}
	}
}

func catalogKey(kind models.ErrorKind) string {
	return "kind." + string(kind)
}

// MatchLocale picks a supported language from a BCP 47 tag or an
// Accept-Language header value. English is the fallback.
func MatchLocale(value string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// Localize returns the short category message for kind.
func Localize(kind models.ErrorKind, tag language.Tag) string {
	if _, ok := categoryMessages[kind]; !ok {
		kind = models.KindToolExecutionFailed
	}
	_, idx, _ := matcher.Match(tag)
	return message.NewPrinter(supported[idx]).Sprintf(catalogKey(kind))
}

// Message renders what an operator sees: the localized category followed by
// the tool's diagnostic verbatim.
func Message(kind models.ErrorKind, detail string, tag language.Tag) string {
	category := Localize(kind, tag)
	if detail == "" {
		return category
	}
	return category + ": " + detail
}

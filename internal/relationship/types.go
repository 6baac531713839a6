package relationship

// 既知のリンク種別とその逆向きの種別。
var invertedTypes = map[string]string{
	"commentary":         "commentary-article",
	"commentary-article": "commentary",
	"companion":          "companion",
	"corrected-article":  "correction-forward",
	"correction-forward": "corrected-article",
	"retracted-article":  "retraction-forward",
	"retraction-forward": "retracted-article",
	"object-of-concern":  "concern-forward",
	"concern-forward":    "object-of-concern",
	"updated-article":    "update-forward",
	"update-forward":     "updated-article",
}

// コーパス中に残っている誤記の読み替え。
var canonicalTypes = map[string]string{
	"corrrection-forward": "correction-forward",
	"article-commentary":  "commentary-article",
}

// CanonicalType は誤記を正規の種別に読み替える。未知の種別はそのまま返す。
func CanonicalType(t string) string {
	if c, ok := canonicalTypes[t]; ok {
		return c
	}
	return t
}

// InvertType はリンクを逆向きから見たときの種別を返す。
// 逆向きが定義されていない種別は "<type>-inverted" になる。
func InvertType(t string) string {
	t = CanonicalType(t)
	if inv, ok := invertedTypes[t]; ok {
		return inv
	}
	return t + "-inverted"
}

// KnownTypes は逆向きが定義されている種別を返す。
func KnownTypes() []string {
	types := make([]string, 0, len(invertedTypes))
	for t := range invertedTypes {
		types = append(types, t)
	}
	return types
}

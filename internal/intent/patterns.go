package intent

import (
	"regexp"
	"strings"
)

// Signal tags what a predicate detects.
type Signal int

const (
	SignalSecurity Signal = iota
	SignalCommand
	SignalBuild
	SignalDiscussion
	SignalQuestion
	signalCount
)

func (s Signal) String() string {
	switch s {
	case SignalSecurity:
		return "security"
	case SignalCommand:
		return "command"
	case SignalBuild:
		return "build"
	case SignalDiscussion:
		return "discussion"
	case SignalQuestion:
		return "question"
	default:
		return "unknown"
	}
}

// Predicate is one tagged matcher. Build predicates are grouped by domain so
// the number of matching build predicates reflects how many build concepts
// the input mentions.
type Predicate struct {
	Signal Signal
	Name   string
	Match  func(text string) bool
}

// Language is the pattern table for one supported language.
type Language struct {
	Name       string
	Predicates []Predicate
}

// Pattern compiles expr into a predicate.
func Pattern(signal Signal, name, expr string) Predicate {
	re := regexp.MustCompile(expr)
	return Predicate{Signal: signal, Name: name, Match: re.MatchString}
}

// Contains matches when text contains any of the characters in chars.
func Contains(signal Signal, name, chars string) Predicate {
	return Predicate{Signal: signal, Name: name, Match: func(text string) bool {
		return strings.ContainsAny(text, chars)
	}}
}

// arabicWords matches any of words as a whole token. Arabic letters are
// outside \b's ASCII word class, so the boundary is spelled out.
func arabicWords(words ...string) string {
	return `(?:^|[^\p{L}])(?:` + strings.Join(words, "|") + `)(?:[^\p{L}]|$)`
}

// arabicStems matches any of stems anywhere, so attached prefixes and
// suffixes are tolerated.
func arabicStems(stems ...string) string {
	return `(?:` + strings.Join(stems, "|") + `)`
}

// englishWords matches any of words case-insensitively on word boundaries.
func englishWords(words ...string) string {
	return `(?i)\b(?:` + strings.Join(words, "|") + `)\b`
}

// Arabic is the Arabic pattern table.
var Arabic = Language{
	Name: "ar",
	Predicates: []Predicate{
		Pattern(SignalSecurity, "security", arabicStems("أمن", "حماية", "ثغر", "اختراق", "تدقيق", "تشفير", "صلاحيات")),

		Pattern(SignalCommand, "imperative", arabicWords(
			"أنشئ", "انشئ", "اصنع", "ابن", "ابني", "صمم", "أضف", "اضف", "احذف", "عدل", "عدّل",
			"شغل", "شغّل", "نفذ", "نفّذ", "أطلق", "اطلق", "انشر", "اعرض", "حدث", "حدّث",
		)),

		Pattern(SignalBuild, "platform", arabicStems("منص[ةه]", "منصات", "تطبيق", "موقع", "متجر", "بوابة", "نظام")),
		Pattern(SignalBuild, "scale", arabicStems("مليون", "آلاف", "الاف", "مستخدم", "مؤسس", "واسع النطاق")),
		Pattern(SignalBuild, "hr", arabicStems("موارد بشرية", "الموارد البشرية", "موظف", "رواتب", "توظيف")),
		Pattern(SignalBuild, "finance", arabicStems("مالية", "محاسب", "فواتير", "فاتورة", "بنك", "بنوك", "مصرف")),
		// طبي is a token match: as a stem it would hit تطبيق.
		Pattern(SignalBuild, "healthcare", arabicStems("صحية", "مستشف", "مرضى", "عياد")+"|"+arabicWords("طبي", "طبية")),
		Pattern(SignalBuild, "education", arabicStems("تعليم", "مدرس", "طلاب", "جامعة", "دورات")),
		Pattern(SignalBuild, "ecommerce", arabicStems("تجارة إلكترونية", "تجارة الكترونية", "تسوق", "منتجات")),

		Pattern(SignalDiscussion, "clarification", arabicWords("يعني", "أقصد", "اقصد", "وضح", "وضّح")),
		Pattern(SignalDiscussion, "agreement", arabicWords("تمام", "موافق", "صحيح", "أتفق", "اتفق", "حسنا", "حسناً", "ممتاز", "جيد")),
		Pattern(SignalDiscussion, "disagreement", arabicStems("لا أوافق", "لا اوافق", "غير موافق", "لست متأكد")),
		Pattern(SignalDiscussion, "continuation", arabicWords("كذلك", "أيضا", "أيضاً", "ايضا", "بالإضافة", "ثم")),
		Pattern(SignalDiscussion, "opinion", arabicStems("رأيك", "رايك", "تنصح", "تقترح")),

		Contains(SignalQuestion, "question-mark", "؟"),
		Pattern(SignalQuestion, "interrogative", arabicWords("ما", "ماذا", "لماذا", "كيف", "متى", "أين", "اين", "هل", "كم")),
	},
}

// English is the English pattern table.
var English = Language{
	Name: "en",
	Predicates: []Predicate{
		Pattern(SignalSecurity, "security", englishWords(
			"security", "secure", "audit", "vulnerabilit(?:y|ies)", "penetration", "pentest", "encryption", "firewall", "threat",
		)),

		Pattern(SignalCommand, "imperative", `(?i)^\s*(?:please\s+)?(?:create|build|make|generate|add|delete|remove|deploy|run|execute|start|stop|install|update|launch|design|set ?up)\b`),
		Pattern(SignalCommand, "request", englishWords(`(?:can|could|would) you (?:please )?(?:create|build|make|generate|add|deploy|run)`)),

		Pattern(SignalBuild, "platform", englishWords("platforms?", "apps?", "applications?", "websites?", "portals?", "marketplaces?", "dashboards?", "saas", "crm", "erp")),
		Pattern(SignalBuild, "scale", englishWords(`\d+\s*[km]?\s*(?:users|customers)`, "millions?", "thousands", "enterprise", "scalable", "multi-tenant")),
		Pattern(SignalBuild, "hr", englishWords("hr", "human resources", "employees?", "payroll", "recruit\\w*", "hiring")),
		Pattern(SignalBuild, "finance", englishWords("finance", "financial", "accounting", "invoic\\w+", "banking", "fintech")),
		Pattern(SignalBuild, "healthcare", englishWords("healthcare", "health", "hospitals?", "clinics?", "patients?", "medical")),
		Pattern(SignalBuild, "education", englishWords("education\\w*", "schools?", "students?", "courses?", "lms", "university")),
		Pattern(SignalBuild, "ecommerce", englishWords("e-?commerce", "online store", "shopping", "products?", "checkout")),

		Pattern(SignalDiscussion, "clarification", englishWords("i mean", "what i meant", "to clarify", "in other words")),
		Pattern(SignalDiscussion, "agreement", englishWords("i agree", "agreed", "exactly", "makes sense", "sounds good", "ok", "okay", "sure", "great")),
		Pattern(SignalDiscussion, "disagreement", englishWords("i disagree", "not sure", "i don't think so")),
		Pattern(SignalDiscussion, "continuation", englishWords("also", "and then", "furthermore", "moreover", "besides", "additionally")),
		Pattern(SignalDiscussion, "opinion", englishWords("what do you think", "your opinion", "do you recommend", "would you suggest", "thoughts")),

		Contains(SignalQuestion, "question-mark", "?"),
		Pattern(SignalQuestion, "interrogative", englishWords("what", "why", "how", "when", "where", "who", "which")),
		Pattern(SignalQuestion, "auxiliary", `(?i)^\s*(?:is|are|does|do|can|could|should|would|will)\b`),
	},
}

package usecase

import (
	"sort"
	"strings"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

// KeywordGroup is one named ordered keyword list.
type KeywordGroup struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// KeywordTables holds the ordered keyword groups scanned by the intent
// analyzer. Order inside each list is significant only for discovery-order
// reporting; classification itself is position-based.
type KeywordTables struct {
	Image      []string       `yaml:"image"`
	Text       []string       `yaml:"text"`
	Table      []string       `yaml:"table"`
	Connectors []string       `yaml:"connectors"`
	Domains    []KeywordGroup `yaml:"domains"`
	Enhanced   []KeywordGroup `yaml:"enhanced"`

	// Complexity tier boundaries in runes; a query longer than MediumMax
	// is classified complex.
	ComplexitySimpleMax int `yaml:"complexity_simple_max"`
	ComplexityMediumMax int `yaml:"complexity_medium_max"`
}

// DefaultKeywordTables covers the Chinese/English vocabulary of the indexed
// corpus (annual reports with figures and data tables).
func DefaultKeywordTables() KeywordTables {
	return KeywordTables{
		Image: []string{
			"图片", "图像", "照片", "配图", "图", "image", "picture", "figure", "photo",
		},
		Text: []string{
			"文字", "文本", "段落", "描述", "正文", "text", "paragraph", "description",
		},
		Table: []string{
			"表格", "数据表", "统计表", "列名", "表单", "table", "column", "row",
		},
		Connectors: []string{
			"结合", "综合", "图表和文字", "图文", "combined", "together with",
		},
		Domains: []KeywordGroup{
			{Name: "财务", Keywords: []string{"财务", "营收", "收入", "利润", "毛利", "资产", "负债", "现金流", "revenue", "profit", "finance"}},
			{Name: "技术", Keywords: []string{"技术", "工艺", "制程", "研发", "专利", "technology", "r&d"}},
			{Name: "市场", Keywords: []string{"市场", "份额", "竞争", "客户", "market", "share", "competitor"}},
			{Name: "运营", Keywords: []string{"运营", "产能", "效率", "供应链", "operations", "capacity"}},
		},
		Enhanced: []KeywordGroup{
			{Name: "图表分析", Keywords: []string{"图表分析", "趋势分析", "chart analysis", "trend analysis"}},
			{Name: "结构化数据", Keywords: []string{"结构化数据", "字段", "structured data"}},
			{Name: "语义特征", Keywords: []string{"语义", "semantic"}},
		},
		ComplexitySimpleMax: 12,
		ComplexityMediumMax: 40,
	}
}

// IntentAnalyzer classifies a free-text query into a routing intent. It is a
// pure function of the keyword tables and the query string.
type IntentAnalyzer struct {
	tables KeywordTables
}

func NewIntentAnalyzer(tables KeywordTables) *IntentAnalyzer {
	if tables.ComplexitySimpleMax <= 0 {
		tables.ComplexitySimpleMax = DefaultKeywordTables().ComplexitySimpleMax
	}
	if tables.ComplexityMediumMax <= tables.ComplexitySimpleMax {
		tables.ComplexityMediumMax = tables.ComplexitySimpleMax + 28
	}
	return &IntentAnalyzer{tables: tables}
}

// AnalyzeIntent returns the primary intent label only.
func (a *IntentAnalyzer) AnalyzeIntent(query string) string {
	return a.AnalyzeIntentWithConfidence(query).PrimaryIntent
}

type keywordHit struct {
	keyword  string
	position int
}

// AnalyzeIntentWithConfidence classifies query and reports matched keywords
// in their discovery order within the query.
//
// Precedence when several groups match is a fixed total order:
// hybrid > domain > modality-focused > enhanced > complexity. Hybrid wins
// structurally (two or more modality groups, or a connector word); after
// that the first matching group in table order decides.
func (a *IntentAnalyzer) AnalyzeIntentWithConfidence(query string) domain.IntentResult {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return domain.IntentResult{PrimaryIntent: domain.IntentHybrid, Confidence: 0}
	}
	lowered := strings.ToLower(trimmed)

	imageHits := scanKeywords(lowered, a.tables.Image)
	textHits := scanKeywords(lowered, a.tables.Text)
	tableHits := scanKeywords(lowered, a.tables.Table)
	connectorHits := scanKeywords(lowered, a.tables.Connectors)

	domainName, domainHits := scanGroups(lowered, a.tables.Domains)
	enhancedName, enhancedHits := scanGroups(lowered, a.tables.Enhanced)

	modalityGroups := 0
	for _, hits := range [][]keywordHit{imageHits, textHits, tableHits} {
		if len(hits) > 0 {
			modalityGroups++
		}
	}

	all := make([]keywordHit, 0, 8)
	all = append(all, imageHits...)
	all = append(all, textHits...)
	all = append(all, tableHits...)
	all = append(all, connectorHits...)
	all = append(all, domainHits...)
	all = append(all, enhancedHits...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].position < all[j].position })

	keywords := make([]string, 0, len(all))
	for _, hit := range all {
		keywords = append(keywords, hit.keyword)
	}

	primary := ""
	contributing := 0
	switch {
	case modalityGroups >= 2 || len(connectorHits) > 0:
		primary = domain.IntentHybrid
		contributing = modalityGroups
		if len(connectorHits) > 0 {
			contributing++
		}
	case domainName != "":
		primary = "domain_" + domainName
		contributing = 1
	case modalityGroups == 1:
		switch {
		case len(imageHits) > 0:
			primary = domain.IntentImageFocused
		case len(textHits) > 0:
			primary = domain.IntentTextFocused
		default:
			primary = domain.IntentTableFocused
		}
		contributing = 1
	case enhancedName != "":
		primary = "enhanced_" + enhancedName
		contributing = 1
	default:
		primary = "complexity_" + a.complexityTier(trimmed)
		contributing = 1
	}

	confidence := float64(contributing) / float64(a.totalGroups())
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	return domain.IntentResult{
		PrimaryIntent: primary,
		Confidence:    confidence,
		Keywords:      keywords,
	}
}

// RouteForIntent maps an intent label onto the modality dispatch. Every
// label without a dedicated single-modality path routes to hybrid.
func RouteForIntent(intent string) domain.QueryType {
	switch intent {
	case domain.IntentImageFocused:
		return domain.QueryTypeImage
	case domain.IntentTextFocused:
		return domain.QueryTypeText
	case domain.IntentTableFocused:
		return domain.QueryTypeTable
	default:
		return domain.QueryTypeHybrid
	}
}

func (a *IntentAnalyzer) complexityTier(query string) string {
	length := len([]rune(query))
	switch {
	case length <= a.tables.ComplexitySimpleMax:
		return "simple"
	case length <= a.tables.ComplexityMediumMax:
		return "medium"
	default:
		return "complex"
	}
}

// totalGroups counts the distinct keyword groups scanned per query:
// three modality groups, the connector group, each domain, each enhanced
// category, and the complexity tier.
func (a *IntentAnalyzer) totalGroups() int {
	return 3 + 1 + len(a.tables.Domains) + len(a.tables.Enhanced) + 1
}

func scanKeywords(lowered string, keywords []string) []keywordHit {
	hits := make([]keywordHit, 0, 2)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if pos := strings.Index(lowered, strings.ToLower(kw)); pos >= 0 {
			hits = append(hits, keywordHit{keyword: kw, position: pos})
		}
	}
	return hits
}

// scanGroups returns the first matching group in table order plus the hits
// of all matching groups.
func scanGroups(lowered string, groups []KeywordGroup) (string, []keywordHit) {
	first := ""
	all := make([]keywordHit, 0, 2)
	for _, group := range groups {
		hits := scanKeywords(lowered, group.Keywords)
		if len(hits) == 0 {
			continue
		}
		if first == "" {
			first = group.Name
		}
		all = append(all, hits...)
	}
	return first, all
}

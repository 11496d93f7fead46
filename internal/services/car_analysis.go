package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/pkg/logger"
)

const (
	PurposeSummary  = "summary"
	PurposeStrategy = "strategy"

	maxPromptIssues = 10
	maxTopIssues    = 5
)

const (
	summarySystemPrompt  = "당신은 고객 관계 관리(CAR) 전문가입니다. 제공된 이슈들을 간결하고 명확하게 요약하여 핵심 포인트만 추출해주세요."
	strategySystemPrompt = "당신은 전략적 고객 관계 컨설턴트입니다. 제공된 정보를 바탕으로 실질적이고 구체적인 전략 제언을 5개 항목으로 구조화하여 제시해주세요."
)

// StrategyLabels are the keys of a parsed strategy, in prompt order.
var StrategyLabels = []string{"전략명", "대상", "요약", "조치", "예상 효과"}

var strategyLabelPattern = regexp.MustCompile(`\[([^\]]+)\]:\s*([^\[\n]+)`)

type SummaryResult struct {
	Text      string
	TopIssues []models.ReportIssue
	Err       *string
}

type StrategyResult struct {
	Text   string
	Parsed map[string]string
	Err    *string
}

// CarAnalyzer produces the two AI sections of a customer block. Both calls
// always return usable content; a failed model call yields fallback text and
// a non-nil Err.
type CarAnalyzer interface {
	Summarize(ctx context.Context, customer, evidence string, issues []models.ReportIssue) SummaryResult
	RecommendStrategy(ctx context.Context, customer, evidence string, issues []models.ReportIssue, summaryText string) StrategyResult
}

// AIAnalysisClient is the CarAnalyzer backed by an LLMCompleter.
type AIAnalysisClient struct {
	completer     LLMCompleter
	summaryModel  string
	strategyModel string
	// selectConfig picks the llm_configs row to try first, or nil.
	selectConfig func() *uint
}

func NewAIAnalysisClient(completer LLMCompleter, summaryModel, strategyModel string, selectConfig func() *uint) *AIAnalysisClient {
	if summaryModel == "" {
		summaryModel = "gpt-3.5-turbo"
	}
	if strategyModel == "" {
		strategyModel = "gpt-4o"
	}
	return &AIAnalysisClient{
		completer:     completer,
		summaryModel:  summaryModel,
		strategyModel: strategyModel,
		selectConfig:  selectConfig,
	}
}

func (a *AIAnalysisClient) configID() *uint {
	if a.selectConfig == nil {
		return nil
	}
	return a.selectConfig()
}

func (a *AIAnalysisClient) Summarize(ctx context.Context, customer, evidence string, issues []models.ReportIssue) SummaryResult {
	result, err := a.completer.Complete(ctx, &CompletionRequest{
		Purpose:      PurposeSummary,
		Customer:     customer,
		SystemPrompt: summarySystemPrompt,
		Prompt:       BuildSummaryPrompt(customer, evidence, issues),
		Temperature:  0.3,
		MaxTokens:    1500,
		Model:        a.summaryModel,
		LLMConfigID:  a.configID(),
	})
	if err != nil {
		logger.Warnf("[AI] summary failed for %s: %v", customer, err)
		msg := "AI 요약 생성 실패 - fallback 적용: " + err.Error()
		return SummaryResult{
			Text:      FallbackSummary(customer, issues),
			TopIssues: firstIssues(issues, maxTopIssues),
			Err:       &msg,
		}
	}

	text := strings.TrimSpace(result.Content)
	if text == "" {
		text = "요약 생성 실패"
	}
	return SummaryResult{Text: text, TopIssues: TopIssues(issues)}
}

func (a *AIAnalysisClient) RecommendStrategy(ctx context.Context, customer, evidence string, issues []models.ReportIssue, summaryText string) StrategyResult {
	result, err := a.completer.Complete(ctx, &CompletionRequest{
		Purpose:      PurposeStrategy,
		Customer:     customer,
		SystemPrompt: strategySystemPrompt,
		Prompt:       BuildStrategyPrompt(customer, evidence, summaryText),
		Temperature:  0.4,
		MaxTokens:    2000,
		Model:        a.strategyModel,
		LLMConfigID:  a.configID(),
	})
	if err != nil {
		logger.Warnf("[AI] strategy failed for %s: %v", customer, err)
		msg := "AI 전략 제언 생성 실패 - fallback 적용: " + err.Error()
		text, parsed := FallbackStrategy(customer)
		return StrategyResult{Text: text, Parsed: parsed, Err: &msg}
	}

	text := strings.TrimSpace(result.Content)
	if text == "" {
		text = "전략 제언 생성 실패"
	}
	return StrategyResult{Text: text, Parsed: ParseStrategy(text)}
}

func BuildSummaryPrompt(customer, evidence string, issues []models.ReportIssue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "아래는 고객사 %s의 전체 이력 기반 요약(근거)과 최근 30일+미종결 CAR 상세 목록입니다.\n\n", customer)
	fmt.Fprintf(&b, "[전체 이력 기반 요약]\n%s\n\n", evidence)
	b.WriteString("[최근 30일+미종결 상세]\n")
	for i, issue := range firstIssues(issues, maxPromptIssues) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, issue.Title)
		if issue.Plan != "" {
			fmt.Fprintf(&b, "   조치계획: %s\n", issue.Plan)
		}
		fmt.Fprintf(&b, "   점수: %s\n\n", formatScore(issue.Score))
	}
	b.WriteString("\n위 내용을 바탕으로 핵심 이슈를 5개 이내로 요약해 주세요.\n(불필요한 반복/상투적 문구 제거, 1,500자 이내)")
	return b.String()
}

func BuildStrategyPrompt(customer, evidence, summaryText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "아래는 고객사 %s의 전체 이력 요약(근거)와 최근 30일+미종결 이슈 요약입니다.\n\n", customer)
	fmt.Fprintf(&b, "[근거 요약]\n%s\n\n", evidence)
	fmt.Fprintf(&b, "[이슈 요약]\n%s\n\n", summaryText)
	b.WriteString("다음 5개 항목으로 구체적인 전략 제언을 제시해 주세요:\n\n")
	b.WriteString("[전략명]: (전략의 핵심 명칭)\n")
	b.WriteString("[대상]: (적용 대상)\n")
	b.WriteString("[요약]: (현재 상황 요약)\n")
	b.WriteString("[조치]: (구체적 실행 방안)\n")
	b.WriteString("[예상 효과]: (기대되는 결과)\n\n")
	b.WriteString("각 항목은 2~3문장 이내로 명확하고 실질적인 조언 위주로 작성해 주세요.")
	return b.String()
}

// ParseStrategy projects free strategy text onto StrategyLabels. Labelled
// lines win; without any label the first five non-empty lines are mapped in
// order. Missing entries are "-".
func ParseStrategy(text string) map[string]string {
	parsed := make(map[string]string, len(StrategyLabels))
	for _, label := range StrategyLabels {
		parsed[label] = "-"
	}

	matches := strategyLabelPattern.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		for _, m := range matches {
			label := strings.TrimSpace(m[1])
			if _, known := parsed[label]; known {
				parsed[label] = strings.TrimSpace(m[2])
			}
		}
		return parsed
	}

	idx := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx >= len(StrategyLabels) {
			break
		}
		parsed[StrategyLabels[idx]] = line
		idx++
	}
	return parsed
}

// TopIssues returns the five highest scored issues. Equal scores keep input
// order.
func TopIssues(issues []models.ReportIssue) []models.ReportIssue {
	sorted := make([]models.ReportIssue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	top := firstIssues(sorted, maxTopIssues)
	for i := range top {
		if top[i].Title == "" {
			top[i].Title = "제목 없음"
		}
		if top[i].Plan == "" {
			top[i].Plan = "계획 없음"
		}
	}
	return top
}

func FallbackSummary(customer string, issues []models.ReportIssue) string {
	if len(issues) == 0 {
		return fmt.Sprintf("고객사 %s에 대한 분석할 이슈가 없습니다.", customer)
	}
	var sum float64
	for _, issue := range issues {
		sum += issue.Score
	}
	return fmt.Sprintf("고객사 %s의 이슈 %d건 분석 (평균 점수: %.1f) - AI 요약 실패로 기본 정보만 제공",
		customer, len(issues), sum/float64(len(issues)))
}

func FallbackStrategy(customer string) (string, map[string]string) {
	text := fmt.Sprintf("고객사 %s에 대한 전략 제언 생성에 실패했습니다. 시스템 관리자에게 문의하시기 바랍니다.", customer)
	return text, map[string]string{
		"전략명":   "시스템 점검 필요",
		"대상":    customer,
		"요약":    "AI 분석 시스템 오류",
		"조치":    "시스템 관리자 문의",
		"예상 효과": "정상 서비스 복구",
	}
}

func firstIssues(issues []models.ReportIssue, n int) []models.ReportIssue {
	if len(issues) < n {
		n = len(issues)
	}
	out := make([]models.ReportIssue, n)
	copy(out, issues[:n])
	return out
}

// formatScore prints whole scores without a decimal point.
func formatScore(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

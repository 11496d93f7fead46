package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/comadj/car-system/internal/models"
)

type fakeCompleter struct {
	content  string
	err      error
	requests []*CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req *CompletionRequest) (*CompletionResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResult{Content: f.content}, nil
}

func sampleIssues() []models.ReportIssue {
	return []models.ReportIssue{
		{Title: "납기 지연", Plan: "일정 재조정", Score: 2},
		{Title: "품질 불량", Plan: "", Score: 9},
		{Title: "포장 파손", Plan: "포장 개선", Score: 5},
		{Title: "서류 누락", Plan: "체크리스트", Score: -1},
		{Title: "응대 지연", Plan: "인원 충원", Score: 7},
		{Title: "단가 문의", Plan: "견적 송부", Score: 0},
	}
}

func TestBuildSummaryPrompt(t *testing.T) {
	prompt := BuildSummaryPrompt("Acme", "전체 이력 3건 분석 결과:", sampleIssues())

	for _, want := range []string{
		"고객사 Acme의 전체 이력 기반 요약",
		"[전체 이력 기반 요약]\n전체 이력 3건 분석 결과:\n\n",
		"[최근 30일+미종결 상세]\n1. 납기 지연\n   조치계획: 일정 재조정\n   점수: 2\n\n",
		"2. 품질 불량\n   점수: 9\n",
		"핵심 이슈를 5개 이내로 요약",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("summary prompt missing %q", want)
		}
	}
}

func TestBuildSummaryPrompt_CapsIssues(t *testing.T) {
	var issues []models.ReportIssue
	for i := 0; i < 12; i++ {
		issues = append(issues, models.ReportIssue{Title: "이슈", Score: 1})
	}
	prompt := BuildSummaryPrompt("Acme", "", issues)
	if !strings.Contains(prompt, "10. 이슈") || strings.Contains(prompt, "11. 이슈") {
		t.Error("summary prompt should list exactly 10 issues")
	}
}

func TestBuildStrategyPrompt(t *testing.T) {
	prompt := BuildStrategyPrompt("Acme", "근거", "요약문")
	for _, want := range []string{"[근거 요약]\n근거\n\n", "[이슈 요약]\n요약문\n\n", "[전략명]:", "[예상 효과]:"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("strategy prompt missing %q", want)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected map[string]string
	}{
		{
			name: "labelled",
			text: "[전략명]: 품질 집중 관리\n[대상]: 생산팀\n[요약]: 불량 증가\n[조치]: 검사 강화\n[예상 효과]: 클레임 감소",
			expected: map[string]string{
				"전략명": "품질 집중 관리", "대상": "생산팀", "요약": "불량 증가", "조치": "검사 강화", "예상 효과": "클레임 감소",
			},
		},
		{
			name: "partial labels keep dash",
			text: "[전략명]: 응대 개선\n[기타]: 무시됨",
			expected: map[string]string{
				"전략명": "응대 개선", "대상": "-", "요약": "-", "조치": "-", "예상 효과": "-",
			},
		},
		{
			name: "positional fallback",
			text: "첫째\n\n둘째\n셋째\n넷째\n다섯째\n여섯째",
			expected: map[string]string{
				"전략명": "첫째", "대상": "둘째", "요약": "셋째", "조치": "넷째", "예상 효과": "다섯째",
			},
		},
		{
			name: "empty",
			text: "",
			expected: map[string]string{
				"전략명": "-", "대상": "-", "요약": "-", "조치": "-", "예상 효과": "-",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStrategy(tt.text)
			for k, v := range tt.expected {
				if got[k] != v {
					t.Errorf("ParseStrategy()[%q] = %q, expected %q", k, got[k], v)
				}
			}
			if len(got) != len(StrategyLabels) {
				t.Errorf("ParseStrategy() has %d keys, expected %d", len(got), len(StrategyLabels))
			}
		})
	}
}

func TestTopIssues(t *testing.T) {
	top := TopIssues(sampleIssues())
	if len(top) != 5 {
		t.Fatalf("TopIssues() len = %d, expected 5", len(top))
	}
	expected := []float64{9, 7, 5, 2, 0}
	for i, score := range expected {
		if top[i].Score != score {
			t.Errorf("TopIssues()[%d].Score = %v, expected %v", i, top[i].Score, score)
		}
	}
	if top[0].Plan != "계획 없음" {
		t.Errorf("TopIssues()[0].Plan = %q, expected 계획 없음", top[0].Plan)
	}
}

func TestSummarize(t *testing.T) {
	completer := &fakeCompleter{content: "  핵심 요약  "}
	client := NewAIAnalysisClient(completer, "", "", func() *uint { return ptrTo(uint(4)) })

	result := client.Summarize(context.Background(), "Acme", "근거", sampleIssues())
	if result.Text != "핵심 요약" {
		t.Errorf("Text = %q, expected trimmed content", result.Text)
	}
	if result.Err != nil {
		t.Errorf("Err = %v, expected nil", *result.Err)
	}
	if len(result.TopIssues) != 5 || result.TopIssues[0].Score != 9 {
		t.Errorf("TopIssues = %+v, expected sorted top 5", result.TopIssues)
	}

	req := completer.requests[0]
	if req.Purpose != PurposeSummary || req.Temperature != 0.3 || req.MaxTokens != 1500 || req.Model != "gpt-3.5-turbo" {
		t.Errorf("request = %+v", req)
	}
	if req.LLMConfigID == nil || *req.LLMConfigID != 4 {
		t.Errorf("LLMConfigID = %v, expected 4", req.LLMConfigID)
	}
}

func TestSummarize_EmptyContent(t *testing.T) {
	client := NewAIAnalysisClient(&fakeCompleter{content: "   "}, "", "", nil)
	if got := client.Summarize(context.Background(), "Acme", "", nil).Text; got != "요약 생성 실패" {
		t.Errorf("Text = %q, expected 요약 생성 실패", got)
	}
}

func TestSummarize_Fallback(t *testing.T) {
	client := NewAIAnalysisClient(&fakeCompleter{err: errors.New("rate limited")}, "", "", nil)
	issues := sampleIssues()

	result := client.Summarize(context.Background(), "Acme", "근거", issues)
	expected := "고객사 Acme의 이슈 6건 분석 (평균 점수: 3.7) - AI 요약 실패로 기본 정보만 제공"
	if result.Text != expected {
		t.Errorf("Text = %q, expected %q", result.Text, expected)
	}
	if result.Err == nil || !strings.Contains(*result.Err, "rate limited") {
		t.Errorf("Err = %v, expected wrapped error", result.Err)
	}
	if len(result.TopIssues) != 5 || result.TopIssues[0].Title != "납기 지연" {
		t.Errorf("fallback TopIssues should be the first five unmodified, got %+v", result.TopIssues)
	}

	empty := client.Summarize(context.Background(), "Acme", "", nil)
	if empty.Text != "고객사 Acme에 대한 분석할 이슈가 없습니다." {
		t.Errorf("Text = %q", empty.Text)
	}
}

func TestRecommendStrategy(t *testing.T) {
	completer := &fakeCompleter{content: "[전략명]: 선제 대응\n[대상]: 영업팀"}
	client := NewAIAnalysisClient(completer, "", "gpt-4.1", nil)

	result := client.RecommendStrategy(context.Background(), "Acme", "근거", sampleIssues(), "요약")
	if result.Text != "[전략명]: 선제 대응\n[대상]: 영업팀" {
		t.Errorf("Text = %q, expected verbatim content", result.Text)
	}
	if result.Parsed["전략명"] != "선제 대응" || result.Parsed["조치"] != "-" {
		t.Errorf("Parsed = %v", result.Parsed)
	}
	req := completer.requests[0]
	if req.Temperature != 0.4 || req.MaxTokens != 2000 || req.Model != "gpt-4.1" {
		t.Errorf("request = %+v", req)
	}
}

func TestRecommendStrategy_Fallback(t *testing.T) {
	client := NewAIAnalysisClient(&fakeCompleter{err: errors.New("down")}, "", "", nil)
	result := client.RecommendStrategy(context.Background(), "Acme", "", nil, "")

	if !strings.HasPrefix(result.Text, "고객사 Acme에 대한 전략 제언 생성에 실패했습니다.") {
		t.Errorf("Text = %q", result.Text)
	}
	if result.Parsed["대상"] != "Acme" || result.Parsed["전략명"] != "시스템 점검 필요" {
		t.Errorf("Parsed = %v", result.Parsed)
	}
	if result.Err == nil || !strings.HasPrefix(*result.Err, "AI 전략 제언 생성 실패 - fallback 적용") {
		t.Errorf("Err = %v", result.Err)
	}
}

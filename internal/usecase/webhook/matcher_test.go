package webhook

import (
	"testing"

	"instaflow/internal/domain"
)

func TestMatchCommentCaseInsensitive(t *testing.T) {
	rules := []domain.Automation{{
		ID:       "a1",
		Kind:     domain.KindCommentToDM,
		IsActive: true,
		Config:   domain.AutomationConfig{Keywords: []string{"guide"}, MessageTemplate: "вот гайд"},
	}}

	matches := MatchComment(rules, domain.CommentEvent{CommentID: "c1", Text: "Send me the GUIDE please"})
	if len(matches) != 1 {
		t.Fatalf("ожидали 1 срабатывание, получили %d", len(matches))
	}
	if matches[0].Keyword != "guide" {
		t.Fatalf("ожидали ключевое слово guide, получили %q", matches[0].Keyword)
	}

	matches = MatchComment(rules, domain.CommentEvent{CommentID: "c2", Text: "no match here"})
	if len(matches) != 0 {
		t.Fatalf("не ожидали срабатываний, получили %d", len(matches))
	}
}

func TestMatchCommentEmptyKeywordsNeverFires(t *testing.T) {
	rules := []domain.Automation{{
		ID:       "a1",
		Kind:     domain.KindCommentToDM,
		IsActive: true,
		Config:   domain.AutomationConfig{MessageTemplate: "привет"},
	}}

	matches := MatchComment(rules, domain.CommentEvent{CommentID: "c1", Text: "любой текст"})
	if len(matches) != 0 {
		t.Fatalf("правило без ключевых слов не должно срабатывать")
	}
}

func TestMatchCommentMediaFilter(t *testing.T) {
	rules := []domain.Automation{{
		ID:       "a1",
		Kind:     domain.KindCommentToDM,
		IsActive: true,
		Config:   domain.AutomationConfig{Keywords: []string{"guide"}, MediaID: "post-42"},
	}}

	matches := MatchComment(rules, domain.CommentEvent{CommentID: "c1", Text: "guide", MediaID: "post-7"})
	if len(matches) != 0 {
		t.Fatalf("фильтр поста должен отсечь чужой пост")
	}

	matches = MatchComment(rules, domain.CommentEvent{CommentID: "c2", Text: "guide", MediaID: "post-42"})
	if len(matches) != 1 {
		t.Fatalf("ожидали срабатывание на целевом посте")
	}
}

func TestMatchCommentSkipsInactiveAndForeignKinds(t *testing.T) {
	rules := []domain.Automation{
		{ID: "a1", Kind: domain.KindCommentToDM, IsActive: false, Config: domain.AutomationConfig{Keywords: []string{"guide"}}},
		{ID: "a2", Kind: domain.KindAutoDMReply, IsActive: true, Config: domain.AutomationConfig{Keywords: []string{"guide"}}},
		{ID: "a3", Kind: "unknown_kind", IsActive: true, Config: domain.AutomationConfig{Keywords: []string{"guide"}}},
	}

	matches := MatchComment(rules, domain.CommentEvent{CommentID: "c1", Text: "guide"})
	if len(matches) != 0 {
		t.Fatalf("неактивные и чужие виды не должны срабатывать")
	}
}

func TestMatchMessageMatchAllDefault(t *testing.T) {
	rules := []domain.Automation{{
		ID:       "a1",
		Kind:     domain.KindAutoDMReply,
		IsActive: true,
	}}

	matches := MatchMessage(rules, domain.MessageEvent{SenderID: "s1", Text: "привет"})
	if len(matches) != 1 {
		t.Fatalf("правило без триггеров должно срабатывать на любой текст")
	}

	matches = MatchMessage(rules, domain.MessageEvent{SenderID: "s1", Text: "  "})
	if len(matches) != 0 {
		t.Fatalf("пустой текст не должен срабатывать")
	}
}

func TestMatchMessageTriggerWords(t *testing.T) {
	rules := []domain.Automation{{
		ID:       "a1",
		Kind:     domain.KindAutoDMReply,
		IsActive: true,
		Config:   domain.AutomationConfig{TriggerWords: []string{"Цена", "доставка"}},
	}}

	matches := MatchMessage(rules, domain.MessageEvent{SenderID: "s1", Text: "Какая цена?"})
	if len(matches) != 1 {
		t.Fatalf("ожидали срабатывание по триггеру")
	}
	if matches[0].TriggerWord != "Цена" {
		t.Fatalf("ожидали триггер Цена, получили %q", matches[0].TriggerWord)
	}

	matches = MatchMessage(rules, domain.MessageEvent{SenderID: "s1", Text: "просто привет"})
	if len(matches) != 0 {
		t.Fatalf("не ожидали срабатываний без триггера")
	}
}

func TestMatchCommentMultipleRulesFire(t *testing.T) {
	rules := []domain.Automation{
		{ID: "a1", Kind: domain.KindCommentToDM, IsActive: true, Config: domain.AutomationConfig{Keywords: []string{"guide"}}},
		{ID: "a2", Kind: domain.KindCommentToDM, IsActive: true, Config: domain.AutomationConfig{Keywords: []string{"please"}}},
	}

	matches := MatchComment(rules, domain.CommentEvent{CommentID: "c1", Text: "guide please"})
	if len(matches) != 2 {
		t.Fatalf("ожидали 2 срабатывания, получили %d", len(matches))
	}
}

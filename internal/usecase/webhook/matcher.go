package webhook

import (
	"strings"

	"instaflow/internal/domain"
)

// CommentMatch описывает сработавшее правило для комментария.
type CommentMatch struct {
	Automation domain.Automation
	Keyword    string
}

// MessageMatch описывает сработавшее правило для личного сообщения.
type MessageMatch struct {
	Automation  domain.Automation
	TriggerWord string
}

// MatchComment отбирает активные comment_to_dm правила, сработавшие на комментарий.
// Совпадение — регистронезависимое вхождение подстроки; правило без ключевых
// слов не срабатывает никогда, правило без фильтра поста срабатывает на любом посте.
func MatchComment(rules []domain.Automation, ev domain.CommentEvent) []CommentMatch {
	text := strings.ToLower(ev.Text)
	var matches []CommentMatch
	for _, rule := range rules {
		if !rule.IsActive || rule.Kind != domain.KindCommentToDM {
			continue
		}
		if rule.Config.MediaID != "" && rule.Config.MediaID != ev.MediaID {
			continue
		}
		for _, kw := range rule.Config.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(kw)) {
				matches = append(matches, CommentMatch{Automation: rule, Keyword: kw})
				break
			}
		}
	}
	return matches
}

// MatchMessage отбирает активные auto_dm_reply правила, сработавшие на сообщение.
// Пустой список триггерных слов означает "отвечать на любое сообщение".
func MatchMessage(rules []domain.Automation, ev domain.MessageEvent) []MessageMatch {
	if strings.TrimSpace(ev.Text) == "" {
		return nil
	}
	text := strings.ToLower(ev.Text)
	var matches []MessageMatch
	for _, rule := range rules {
		if !rule.IsActive || rule.Kind != domain.KindAutoDMReply {
			continue
		}
		if len(rule.Config.TriggerWords) == 0 {
			matches = append(matches, MessageMatch{Automation: rule})
			continue
		}
		for _, tw := range rule.Config.TriggerWords {
			tw = strings.TrimSpace(tw)
			if tw == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(tw)) {
				matches = append(matches, MessageMatch{Automation: rule, TriggerWord: tw})
				break
			}
		}
	}
	return matches
}

package utils

import (
	"reflect"
	"strings"
	"testing"
)

func TestParsePreferenceList(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want []string
	}{
		{"nil输入", nil, []string{}},
		{"字符串切片透传", []string{"short", "playful"}, []string{"short", "playful"}},
		{"字符串切片去重", []string{"short", "short", " playful "}, []string{"short", "playful"}},
		{"interface切片", []interface{}{"short", "playful", 42}, []string{"short", "playful"}},
		{"空字符串", "", []string{}},
		{"JSON数组字符串", `["short","playful"]`, []string{"short", "playful"}},
		{"逗号分隔字符串", "short, playful ,short", []string{"short", "playful"}},
		{"其他类型", 3.14, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePreferenceList(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePreferenceList(%v) = %v, 期望 %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSanitizeTipText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		notWant []string
	}{
		{"URL被移除", "Read more at https://example.com/tips today", []string{"http", "example.com"}},
		{"www链接被移除", "See www.spam.example for details", []string{"www."}},
		{"电话号码被移除", "Dial +86 138 0013 8000 for help", []string{"138"}},
		{"索要联系方式被移除", "This works, text me if you need more", []string{"text me"}},
		{"脏词被移除", "That is a damn good trick", []string{"damn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeTipText(tt.input)
			for _, bad := range tt.notWant {
				if strings.Contains(strings.ToLower(got), bad) {
					t.Errorf("SanitizeTipText(%q) = %q, 不应包含 %q", tt.input, got, bad)
				}
			}
		})
	}

	// 干净文本原样保留
	clean := "Count the stairs together every morning."
	if got := SanitizeTipText(clean); got != clean {
		t.Errorf("干净文本被改动: %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("hello", 10); got != "hello" {
		t.Errorf("短文本不应截断: %q", got)
	}
	if got := TruncateRunes("hello world", 5); got != "hello" {
		t.Errorf("TruncateRunes = %q, 期望 hello", got)
	}
	// 按rune截断，多字节字符不会被截成半个
	if got := TruncateRunes("你好世界啊", 2); got != "你好" {
		t.Errorf("TruncateRunes = %q, 期望 你好", got)
	}
	if got := TruncateRunes("hello", 0); got != "hello" {
		t.Errorf("maxChars为0表示不限制: %q", got)
	}
}

func TestDeduplicateSlice(t *testing.T) {
	got := DeduplicateSlice([]string{"a", " b ", "a", "", "b"})
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeduplicateSlice = %v, 期望 %v", got, want)
	}
}

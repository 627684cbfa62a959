package services

import (
	"strings"
	"testing"
)

func TestSurveyOptionText(t *testing.T) {
	// 登记过的选项用精心写的描述文本
	got := surveyOptionText("early_literacy", "reading")
	if !strings.Contains(got, "picture books") {
		t.Errorf("surveyOptionText = %q, 期望包含登记的描述", got)
	}

	// 未登记的选项退回"小节 选项"拼接，保证问卷扩展不需要改代码
	got = surveyOptionText("new_section", "new_option")
	if got != "new section new option" {
		t.Errorf("surveyOptionText兜底 = %q", got)
	}
}

func TestSurveyWeightDecay(t *testing.T) {
	s := &PreferenceService{startWeight: 0.7, floorWeight: 0.3, decayStep: 0.02}

	tests := []struct {
		interactions int
		want         float64
	}{
		{0, 0.7},
		{10, 0.5},
		{20, 0.3},
		{50, 0.3}, // 不跌破下限
	}
	for _, tt := range tests {
		got := s.surveyBlendWeight(tt.interactions)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("surveyBlendWeight(%d) = %v, 期望 %v", tt.interactions, got, tt.want)
		}
	}
}

func vecAlmostEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if diff := a[i] - b[i]; diff > 1e-4 || diff < -1e-4 {
			return false
		}
	}
	return true
}

func TestProfileVectorLikesOnly(t *testing.T) {
	s := &PreferenceService{dislikeAlpha: 0.6, startWeight: 0.7, floorWeight: 0.3, decayStep: 0.02}

	got := s.profileVector([][]float32{{1, 0, 0}, {0, 1, 0}}, nil, nil, 2)
	want := []float32{0.70710677, 0.70710677, 0}
	if !vecAlmostEqual(got, want) {
		t.Errorf("profileVector = %v, 期望 %v", got, want)
	}
}

func TestProfileVectorDislikeDamping(t *testing.T) {
	s := &PreferenceService{dislikeAlpha: 0.6, startWeight: 0.7, floorWeight: 0.3, decayStep: 0.02}

	// 原始向量 {1, -0.6, 0}，归一化后除以sqrt(1.36)
	got := s.profileVector([][]float32{{1, 0, 0}}, [][]float32{{0, 1, 0}}, nil, 2)
	want := []float32{0.85749292, -0.51449575, 0}
	if !vecAlmostEqual(got, want) {
		t.Errorf("profileVector = %v, 期望 %v", got, want)
	}
}

func TestProfileVectorSavesDoNotMoveVector(t *testing.T) {
	s := &PreferenceService{dislikeAlpha: 0.6, startWeight: 0.7, floorWeight: 0.3, decayStep: 0.02}

	// 收藏只进交互计数，不进正向质心：没有问卷向量时，
	// 用户再怎么收藏（计数2变5）画像向量都不动
	likes := [][]float32{{1, 0, 0}}
	dislikes := [][]float32{{0, 0, 1}}
	before := s.profileVector(likes, dislikes, nil, 2)
	after := s.profileVector(likes, dislikes, nil, 5)
	if !vecAlmostEqual(before, after) {
		t.Errorf("收藏不应移动画像向量: %v -> %v", before, after)
	}
}

func TestProfileVectorZeroCancellation(t *testing.T) {
	s := &PreferenceService{dislikeAlpha: 1.0, startWeight: 0.7, floorWeight: 0.3, decayStep: 0.02}

	// 正负向量刚好抵消时返回nil，调用方保留旧画像
	got := s.profileVector([][]float32{{1, 0, 0}}, [][]float32{{1, 0, 0}}, nil, 2)
	if got != nil {
		t.Errorf("抵消成零向量时应返回nil，实际 %v", got)
	}
}

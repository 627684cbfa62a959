package models

import "testing"

func TestInteractionRemovalsExclusivity(t *testing.T) {
	// like和dislike互斥：写入任一方必须删除另一方
	if got := InteractionRemovals[InteractionLike]; len(got) != 1 || got[0] != InteractionDislike {
		t.Errorf("like的转移表 = %v, 期望删除dislike", got)
	}
	if got := InteractionRemovals[InteractionDislike]; len(got) != 1 || got[0] != InteractionLike {
		t.Errorf("dislike的转移表 = %v, 期望删除like", got)
	}

	// save独立于like/dislike
	if got := InteractionRemovals[InteractionSave]; len(got) != 0 {
		t.Errorf("save不应删除任何交互: %v", got)
	}

	// unsave只撤销save
	if got := InteractionRemovals[InteractionUnsave]; len(got) != 1 || got[0] != InteractionSave {
		t.Errorf("unsave的转移表 = %v, 期望只删除save", got)
	}
}

func TestIsValidInteractionType(t *testing.T) {
	for _, valid := range []string{InteractionLike, InteractionDislike, InteractionSave, InteractionUnsave} {
		if !IsValidInteractionType(valid) {
			t.Errorf("%s 应是合法交互类型", valid)
		}
	}
	for _, invalid := range []string{"", "LIKE", "favorite", "share"} {
		if IsValidInteractionType(invalid) {
			t.Errorf("%s 不应是合法交互类型", invalid)
		}
	}
}

package tracker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("로고 깨짐", "로고깨짐"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("Login Fails", "login fails"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("", ""), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", ""), 1e-9)
	assert.InDelta(t, 1.0, Similarity("a", "A"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("a", "b"), 1e-9)

	// 버튼에러남 vs 결제버튼안눌림 share only the 버튼 bigram.
	assert.InDelta(t, 0.2, Similarity("버튼 에러남", "결제 버튼 안 눌림"), 1e-9)
	assert.Less(t, Similarity("로고 깨짐", "버튼 에러남"), 0.6)
	assert.Greater(t, Similarity("결제 버튼 안 눌림", "결제 버튼이 안 눌림"), 0.6)
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"데이터가 중복으로 표시됨", "데이터 중복 표시"},
		{"export button broken", "broken export"},
	}
	for _, p := range pairs {
		t.Run(fmt.Sprintf("%s|%s", p[0], p[1]), func(t *testing.T) {
			assert.InDelta(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), 1e-9)
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("create: %w", ErrTransient)))
	assert.False(t, IsTransient(ErrNotFound))
}

func TestSameTitle(t *testing.T) {
	assert.True(t, SameTitle("로고 깨짐", "로고깨짐"))
	assert.True(t, SameTitle("Export CSV", "export  csv"))
	assert.False(t, SameTitle("로고 깨짐", "로고 깨짐 심함"))
}

package qacard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBasic(t *testing.T) {
	text := `
## 5.1 语言基础与语法

### 1）Integer 和 int 的区别？
- int 是基本类型
- Integer 是包装类型

### 2）JRE 和 JDK 的区别？
- JRE 用于运行
- JDK 用于开发
`
	cards := Parse(text, "note_demo")
	assert.Len(t, cards, 2)
	assert.True(t, strings.HasPrefix(cards[0].Question, "Integer 和 int"))
	assert.Equal(t, "java_basic", cards[0].Topic)
	assert.GreaterOrEqual(t, len(cards[0].KeyPoints), 2)
	assert.True(t, strings.HasPrefix(cards[0].QuestionID, "qa_note_demo_"))
}

func TestParseDedupByQuestion(t *testing.T) {
	text := `
## 主题
### 1）什么是 HashMap？
- 哈希表

### 2）什么是 HashMap？
- 数组 + 链表
`
	cards := Parse(text, "note_dup")
	assert.Len(t, cards, 1)
}

func TestParseSkipsEmptyAnswers(t *testing.T) {
	text := `
## 并发
### 1）线程池的核心参数？

### 2）volatile 的作用？
保证可见性，禁止指令重排序，常用于状态标志位的同步场景。
`
	cards := Parse(text, "note_empty")
	assert.Len(t, cards, 1)
	assert.Equal(t, "concurrency", cards[0].Topic)
	// Prose answers still yield sentence key points.
	assert.NotEmpty(t, cards[0].KeyPoints)
}

func TestParseStableIDs(t *testing.T) {
	text := "## 主题\n### 1）什么是 AOP？\n- 面向切面编程"
	first := Parse(text, "note_a")
	second := Parse(text, "note_a")
	assert.Equal(t, first[0].QuestionID, second[0].QuestionID)

	other := Parse(text, "note_b")
	assert.NotEqual(t, first[0].QuestionID, other[0].QuestionID)
}

func TestDifficultyHeuristics(t *testing.T) {
	assert.Equal(t, "hard", difficultyFromQuestion("HashMap 扩容原理？"))
	assert.Equal(t, "easy", difficultyFromQuestion("什么是多态？"))
	assert.Equal(t, "medium", difficultyFromQuestion("Spring Bean 生命周期流程"))
}

func TestBuildDocumentAndMetadata(t *testing.T) {
	cards := Parse("## 集合\n### 1）ArrayList 和 LinkedList 的区别？\n- 底层数组\n- 底层链表", "note_doc")
	assert.Len(t, cards, 1)

	doc := BuildDocument(cards[0])
	assert.Contains(t, doc, "Question: ArrayList 和 LinkedList 的区别？")
	assert.Contains(t, doc, "StandardAnswer:\n")
	assert.Contains(t, doc, "Topic: collections")
	assert.Contains(t, doc, "KeyPoints:\n- 底层数组")

	meta := Metadata(cards[0])
	assert.Equal(t, "qa_card", meta["doc_kind"])
	assert.Equal(t, cards[0].QuestionID, meta["question_id"])
	assert.Contains(t, meta["key_points_json"].(string), "底层数组")
}

package model

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionCoding         QuestionType = "coding"
	QuestionOpen           QuestionType = "open" // 行为/系统设计类，由AI评分
)

// TestCase 编程题的测试用例，Hidden用例不回显给考生
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Hidden   bool   `json:"hidden"`
}

// swagger:model Question
type Question struct {
	BaseModel
	Type        QuestionType `gorm:"size:30;not null;index" json:"type"`
	Category    string       `gorm:"size:100;not null;index" json:"category"` // 技能/分类名，如 algorithms, sql
	Difficulty  string       `gorm:"size:20;default:'medium';index" json:"difficulty"`
	Title       string       `gorm:"size:255" json:"title"`
	Content     string       `gorm:"type:text;not null" json:"content"`
	Options     []string     `gorm:"serializer:json;type:json" json:"options,omitempty"`
	Answer      int          `gorm:"default:0" json:"-"` // 选择题正确选项下标
	TestCases   []TestCase   `gorm:"serializer:json;type:json" json:"-"`
	Rubric      string       `gorm:"type:text" json:"-"` // AI评分准则
	Explanation string       `gorm:"type:text" json:"-"`
	LanguageID  int          `gorm:"default:0" json:"languageId,omitempty"` // Judge0语言ID，编程题使用
	Points      int          `gorm:"default:1" json:"points"`
	Enabled     bool         `gorm:"default:true" json:"enabled"`
}

func (Question) TableName() string {
	return "questions"
}

// SessionItem 会话创建时从题库采样的题目快照，创建后不可变
type SessionItem struct {
	QuestionID  uint         `json:"questionId"`
	Type        QuestionType `json:"type"`
	Category    string       `json:"category"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	Options     []string     `json:"options,omitempty"`
	Answer      int          `json:"-"`
	TestCases   []TestCase   `json:"-"`
	Rubric      string       `json:"-"`
	Explanation string       `json:"-"`
	LanguageID  int          `json:"languageId,omitempty"`
	Points      int          `json:"points"`
}

// NewSessionItem 由题库题目生成不可变的会话题目快照
func NewSessionItem(q *Question) SessionItem {
	return SessionItem{
		QuestionID:  q.ID,
		Type:        q.Type,
		Category:    q.Category,
		Title:       q.Title,
		Content:     q.Content,
		Options:     q.Options,
		Answer:      q.Answer,
		TestCases:   q.TestCases,
		Rubric:      q.Rubric,
		Explanation: q.Explanation,
		LanguageID:  q.LanguageID,
		Points:      q.Points,
	}
}

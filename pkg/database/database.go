package database

import (
	"fmt"
	"interview_prep_backend/internal/config"
	"interview_prep_backend/internal/model"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	err = db.AutoMigrate(
		&model.User{},
		&model.Question{},
		&model.PracticeSession{},
		&model.UserProgress{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// 默认题库（为空时插入一批示例题，便于本地启动联调）
	var qCount int64
	db.Model(&model.Question{}).Count(&qCount)
	if qCount == 0 {
		defaultQuestions := []model.Question{
			{
				Type:        model.QuestionMultipleChoice,
				Category:    "algorithms",
				Difficulty:  "easy",
				Title:       "二分查找的时间复杂度",
				Content:     "在长度为 n 的有序数组上执行二分查找，最坏情况下的时间复杂度是？",
				Options:     []string{"O(n)", "O(log n)", "O(n log n)", "O(1)"},
				Answer:      1,
				Explanation: "每次比较后搜索区间减半，最坏情况比较 log2(n) 次。",
				Points:      1,
				Enabled:     true,
			},
			{
				Type:        model.QuestionMultipleChoice,
				Category:    "sql",
				Difficulty:  "easy",
				Title:       "去重查询",
				Content:     "下列哪个关键字用于去除查询结果中的重复行？",
				Options:     []string{"UNIQUE", "DISTINCT", "GROUP", "FILTER"},
				Answer:      1,
				Explanation: "SELECT DISTINCT 按整行去重。",
				Points:      1,
				Enabled:     true,
			},
			{
				Type:       model.QuestionOpen,
				Category:   "behavioral",
				Difficulty: "medium",
				Title:      "冲突处理",
				Content:    "请描述一次你与同事在技术方案上产生分歧的经历，你是如何推动达成一致的？",
				Rubric:     "考察沟通结构（情境-行动-结果）、换位思考与数据驱动的论证。",
				Points:     1,
				Enabled:    true,
			},
		}
		for _, q := range defaultQuestions {
			db.Create(&q)
		}
	}

	return db, nil
}

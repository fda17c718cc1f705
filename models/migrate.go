package models

import "gorm.io/gorm"

func AutoMigrateAll(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&UserConnection{},
		&Conversation{},
		&ConversationParticipant{},
		&Message{},
		&CallSession{},
	)
	if err != nil {
		return err
	}
	return nil
}

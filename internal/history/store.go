/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package history

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the SQLite session database.
// Store 封装 SQLite 会话数据库。
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the session database at path.
// Open 打开（必要时创建）位于 path 的会话数据库。
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session db directory: %w", err)
	}

	// The database is incidental to the run; keep gorm quiet so its output
	// never interleaves with the session banners.
	// 数据库对运行本身是附带的；保持 gorm 静默以免其输出与会话横幅交错。
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate session db: %w", err)
	}

	return &Store{db: db}, nil
}

// Record inserts one session record.
// Record 插入一条会话记录。
func (s *Store) Record(rec *SessionRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
// Recent 返回最多 limit 条记录，按时间倒序。
func (s *Store) Recent(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var recs []SessionRecord
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	return recs, nil
}

// Close closes the underlying database connection.
// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying db: %w", err)
	}
	return sqlDB.Close()
}

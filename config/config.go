package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv 读取 .env（可选），已存在的环境变量优先
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		log.Println("no .env file found, using process environment")
		return
	}
	if err := godotenv.Load(present...); err != nil {
		log.Printf("load env: %v", err)
	}
}

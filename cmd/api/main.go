package main

import (
	"log"
	"os"

	"suibison/internal/server"
)

func main() {
	fileLog := os.Getenv("FILE_LOG")
	if fileLog == "" {
		fileLog = "./bison-api.log"
	}
	server.SetLogger(fileLog)
	if err := server.ApiInit(); err != nil {
		log.Fatalln(err)
	}
}

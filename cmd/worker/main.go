package main

import (
	"log"
	"os"

	"suibison/internal/server"
)

func main() {
	fileLog := os.Getenv("FILE_LOG")
	if fileLog == "" {
		fileLog = "./bison-worker.log"
	}
	server.SetLogger(fileLog)
	if err := server.WorkerInit(); err != nil {
		log.Fatalln(err)
	}
}

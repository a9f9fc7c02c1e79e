package main

import "github.com/music-bingo-bot/kazoo-bot/internal/app"

func main() {
	app.Run()
}

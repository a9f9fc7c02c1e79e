package app

import (
	tele "gopkg.in/telebot.v3"
)

// Courier — узкий интерфейс доставки сообщений. За ним прячется
// telebot, в тестах — фейк с программируемыми ошибками.
type Courier interface {
	SendText(userID int64, text string) error
	SendPhoto(userID int64, path, caption string) error
	// SendPhotoAlbum отправляет до 10 фото одной группой,
	// подпись уходит на первом фото.
	SendPhotoAlbum(userID int64, paths []string, caption string) error
	SendVideo(userID int64, path, caption string) error
	SendDocument(userID int64, path, caption string) error
	SendAudio(userID int64, path, caption string) error
}

type telebotCourier struct {
	bot *tele.Bot
}

func NewTelebotCourier(bot *tele.Bot) Courier {
	return &telebotCourier{bot: bot}
}

func (c *telebotCourier) SendText(userID int64, text string) error {
	_, err := c.bot.Send(&tele.User{ID: userID}, text, tele.ModeHTML)
	return err
}

func (c *telebotCourier) SendPhoto(userID int64, path, caption string) error {
	p := &tele.Photo{File: tele.FromDisk(path), Caption: caption}
	_, err := c.bot.Send(&tele.User{ID: userID}, p)
	return err
}

func (c *telebotCourier) SendPhotoAlbum(userID int64, paths []string, caption string) error {
	var album tele.Album
	for i, path := range paths {
		if i >= 10 {
			break
		}
		p := &tele.Photo{File: tele.FromDisk(path)}
		if i == 0 {
			p.Caption = caption
		}
		album = append(album, p)
	}
	_, err := c.bot.SendAlbum(&tele.User{ID: userID}, album)
	return err
}

func (c *telebotCourier) SendVideo(userID int64, path, caption string) error {
	v := &tele.Video{File: tele.FromDisk(path), Caption: caption}
	_, err := c.bot.Send(&tele.User{ID: userID}, v)
	return err
}

func (c *telebotCourier) SendDocument(userID int64, path, caption string) error {
	d := &tele.Document{File: tele.FromDisk(path), Caption: caption}
	_, err := c.bot.Send(&tele.User{ID: userID}, d)
	return err
}

func (c *telebotCourier) SendAudio(userID int64, path, caption string) error {
	a := &tele.Audio{File: tele.FromDisk(path), Caption: caption}
	_, err := c.bot.Send(&tele.User{ID: userID}, a)
	return err
}

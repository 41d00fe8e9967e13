package main

import "time"

// Link: разобранная строка подписки
type Link struct {
	Raw       string
	Scheme    string // vmess, vless, trojan, ss... (пусто, если схемы нет)
	BeforeTag string // всё до первого '#'
	Tag       string // декодированный текст после '#'
	HasTag    bool
	Body      string // всё после "://" до '#'
	Authority string // user@host:port
}

// GeoResult: ответ геолокации; достаточно одного из полей
type GeoResult struct {
	CountryCode string
	Flag        string
}

type flagEntry struct {
	flag   string
	stored time.Time
}

package teleapp

import (
	"strings"
	"time"

	"github.com/zelenin/go-tdlib/client"

	"github.com/wzxcff/APIScraperTG/internal/session"
)

// TDLib 的消息ID为服务端消息ID左移 20 位
const messageIdShift = 20

func toServerId(tdId int64) int64 {
	return tdId >> messageIdShift
}

func toTdId(serverId int64) int64 {
	return serverId << messageIdShift
}

func unixTime(ts int32) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}

// senderUserId 仅识别用户发送者，频道署名等返回 0
func senderUserId(sender client.MessageSender) int64 {
	if user, ok := sender.(*client.MessageSenderUser); ok {
		return user.UserId
	}
	return 0
}

func convertMessage(message *client.Message) *session.Message {
	result := &session.Message{
		ID:       toServerId(message.Id),
		Date:     unixTime(message.Date),
		EditDate: unixTime(message.EditDate),
		SenderID: senderUserId(message.SenderId),
	}
	if message.InteractionInfo != nil && message.InteractionInfo.ReplyInfo != nil {
		result.ReplyCount = int(message.InteractionInfo.ReplyInfo.ReplyCount)
	}
	result.Text, result.Media = convertContent(message.Content)
	return result
}

// convertContent 提取文本（或媒体说明）和附件引用
func convertContent(content client.MessageContent) (string, *session.Media) {
	switch c := content.(type) {
	case *client.MessageText:
		return formattedText(c.Text), nil
	case *client.MessagePhoto:
		media := &session.Media{Kind: session.MediaPhoto, MimeType: "image/jpeg"}
		if c.Photo != nil && len(c.Photo.Sizes) > 0 {
			// 最后一个尺寸为最大尺寸
			size := c.Photo.Sizes[len(c.Photo.Sizes)-1]
			if size.Photo != nil {
				media.FileID = size.Photo.Id
			}
		}
		return formattedText(c.Caption), media
	case *client.MessageDocument:
		media := &session.Media{Kind: session.MediaDocument}
		if c.Document != nil {
			media.MimeType = c.Document.MimeType
			media.FileName = c.Document.FileName
			if c.Document.Document != nil {
				media.FileID = c.Document.Document.Id
			}
		}
		return formattedText(c.Caption), media
	case *client.MessageVideo:
		media := &session.Media{Kind: session.MediaDocument}
		if c.Video != nil {
			media.MimeType = c.Video.MimeType
			media.FileName = c.Video.FileName
			if c.Video.Video != nil {
				media.FileID = c.Video.Video.Id
			}
		}
		return formattedText(c.Caption), media
	case *client.MessageAudio:
		media := &session.Media{Kind: session.MediaDocument}
		if c.Audio != nil {
			media.MimeType = c.Audio.MimeType
			media.FileName = c.Audio.FileName
			if c.Audio.Audio != nil {
				media.FileID = c.Audio.Audio.Id
			}
		}
		return formattedText(c.Caption), media
	case *client.MessageAnimation:
		media := &session.Media{Kind: session.MediaDocument}
		if c.Animation != nil {
			media.MimeType = c.Animation.MimeType
			media.FileName = c.Animation.FileName
			if c.Animation.Animation != nil {
				media.FileID = c.Animation.Animation.Id
			}
		}
		return formattedText(c.Caption), media
	case *client.MessageLocation:
		if c.Location == nil {
			return "", nil
		}
		return "", &session.Media{
			Kind: session.MediaOther,
			Geo:  &session.GeoPoint{Latitude: c.Location.Latitude, Longitude: c.Location.Longitude},
		}
	case *client.MessageVenue:
		if c.Venue == nil || c.Venue.Location == nil {
			return "", nil
		}
		return c.Venue.Title, &session.Media{
			Kind: session.MediaOther,
			Geo:  &session.GeoPoint{Latitude: c.Venue.Location.Latitude, Longitude: c.Venue.Location.Longitude},
		}
	default:
		return "", nil
	}
}

func formattedText(text *client.FormattedText) string {
	if text == nil {
		return ""
	}
	return text.Text
}

func convertUser(user *client.User) *session.User {
	result := &session.User{
		ID:        user.Id,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		HasPhoto:  user.ProfilePhoto != nil,
	}
	if user.Usernames != nil && len(user.Usernames.ActiveUsernames) > 0 {
		result.Username = user.Usernames.ActiveUsernames[0]
	}
	if user.Type != nil && user.Type.UserTypeType() == client.TypeUserTypeBot {
		result.IsBot = true
	}
	return result
}

// convertStatus 将成员状态转换为权限
func convertStatus(status client.ChatMemberStatus) *session.Permissions {
	perms := &session.Permissions{IsParticipant: true}
	if status == nil {
		perms.IsParticipant = false
		return perms
	}

	switch status.ChatMemberStatusType() {
	case client.TypeChatMemberStatusCreator:
		perms.IsCreator = true
		perms.IsAdmin = true
		if creator, ok := status.(*client.ChatMemberStatusCreator); ok {
			perms.IsParticipant = creator.IsMember
		}
	case client.TypeChatMemberStatusAdministrator:
		perms.IsAdmin = true
	case client.TypeChatMemberStatusLeft, client.TypeChatMemberStatusBanned:
		perms.IsParticipant = false
	case client.TypeChatMemberStatusRestricted:
		if restricted, ok := status.(*client.ChatMemberStatusRestricted); ok {
			perms.IsParticipant = restricted.IsMember
		}
	}
	return perms
}

// describeAction 将管理日志动作类型转换为可读描述，例如 chatEventMemberJoined -> member joined
func describeAction(action client.ChatEventAction) string {
	if action == nil {
		return "unknown"
	}
	name := action.ChatEventActionType()
	name = strings.TrimPrefix(name, "chatEvent")

	out := make([]rune, 0, len(name)+4)
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out = append(out, ' ')
			}
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

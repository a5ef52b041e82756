package teleapp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zelenin/go-tdlib/client"

	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/session"
)

const (
	historyPageSize = 100
	membersPageSize = 200
	eventsPageSize  = 100
)

var _ session.Session = (*TeleApp)(nil)

func (app *TeleApp) Me(ctx context.Context) (*session.User, error) {
	if err := app.wait(ctx); err != nil {
		return nil, err
	}
	me, err := app.tdClient.GetMe()
	if err != nil {
		return nil, mapError(err)
	}
	return convertUser(me), nil
}

// ResolveEntity 解析 @username 或数字形式的 chat id
func (app *TeleApp) ResolveEntity(ctx context.Context, handle string) (*session.Entity, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")

	var chat *client.Chat
	if chatId, err := strconv.ParseInt(handle, 10, 64); err == nil {
		chat, err = app.getChat(ctx, chatId)
		if err != nil {
			return nil, err
		}
	} else {
		if err := app.wait(ctx); err != nil {
			return nil, err
		}
		chat, err = app.tdClient.SearchPublicChat(&client.SearchPublicChatRequest{Username: handle})
		if err != nil {
			return nil, mapError(err)
		}
		app.chatsMu.Lock()
		app.chatsCache[chat.Id] = chat
		app.chatsMu.Unlock()
	}

	entity := &session.Entity{
		ID:       chat.Id,
		Kind:     session.KindUnknown,
		Title:    chat.Title,
		Username: handle,
		HasPhoto: chat.Photo != nil,
	}
	switch t := chat.Type.(type) {
	case *client.ChatTypeSupergroup:
		entity.Kind = session.KindMegagroup
		if t.IsChannel {
			entity.Kind = session.KindBroadcast
		}
	case *client.ChatTypeBasicGroup:
		entity.Kind = session.KindChat
	case *client.ChatTypePrivate:
		entity.Kind = session.KindUser
	}
	return entity, nil
}

func (app *TeleApp) Permissions(ctx context.Context, entity *session.Entity, userID int64) (*session.Permissions, error) {
	if err := app.wait(ctx); err != nil {
		return nil, err
	}
	member, err := app.tdClient.GetChatMember(&client.GetChatMemberRequest{
		ChatId:   entity.ID,
		MemberId: &client.MessageSenderUser{UserId: userID},
	})
	if err != nil {
		return nil, mapError(err)
	}

	perms := convertStatus(member.Status)
	if !perms.IsParticipant {
		return perms, session.ErrNotParticipant
	}
	return perms, nil
}

// FullInfo 获取描述和成员统计，TDLib 不提供在线人数
func (app *TeleApp) FullInfo(ctx context.Context, entity *session.Entity) (*session.FullInfo, error) {
	chat, err := app.getChat(ctx, entity.ID)
	if err != nil {
		return nil, err
	}

	info := &session.FullInfo{HasPhoto: chat.Photo != nil}
	if err := app.wait(ctx); err != nil {
		return nil, err
	}

	switch t := chat.Type.(type) {
	case *client.ChatTypeSupergroup:
		full, err := app.tdClient.GetSupergroupFullInfo(&client.GetSupergroupFullInfoRequest{SupergroupId: t.SupergroupId})
		if err != nil {
			return nil, mapError(err)
		}
		info.About = full.Description
		info.ParticipantsCount = count(full.MemberCount)
		info.AdminsCount = count(full.AdministratorCount)
		info.KickedCount = count(full.BannedCount)
		info.BannedCount = count(full.RestrictedCount)
	case *client.ChatTypeBasicGroup:
		full, err := app.tdClient.GetBasicGroupFullInfo(&client.GetBasicGroupFullInfoRequest{BasicGroupId: t.BasicGroupId})
		if err != nil {
			return nil, mapError(err)
		}
		info.About = full.Description
		members := len(full.Members)
		info.ParticipantsCount = &members
	}
	return info, nil
}

// count TDLib 对无权限查看的统计返回 0
func count(n int32) *int {
	if n <= 0 {
		return nil
	}
	v := int(n)
	return &v
}

// ListMessages 分页读取历史消息，offsetID 本身不包含在结果中
func (app *TeleApp) ListMessages(ctx context.Context, entity *session.Entity, limit int, offsetID int64) ([]*session.Message, error) {
	fromId := int64(0)
	if offsetID > 0 {
		fromId = toTdId(offsetID)
	}

	result := make([]*session.Message, 0)
	for limit <= 0 || len(result) < limit {
		pageSize := historyPageSize
		if limit > 0 && limit-len(result) < pageSize {
			pageSize = limit - len(result)
		}

		if err := app.wait(ctx); err != nil {
			return result, err
		}
		history, err := app.tdClient.GetChatHistory(&client.GetChatHistoryRequest{
			ChatId:        entity.ID,
			FromMessageId: fromId,
			Offset:        0,
			Limit:         int32(pageSize),
			OnlyLocal:     false,
		})
		if err != nil {
			return result, mapError(err)
		}

		next := fromId
		for _, message := range history.Messages {
			next = message.Id
			if fromId != 0 && message.Id >= fromId {
				continue
			}
			result = append(result, convertMessage(message))
			if limit > 0 && len(result) >= limit {
				break
			}
		}
		if len(history.Messages) == 0 || next == fromId {
			break
		}
		fromId = next
	}
	return result, nil
}

func (app *TeleApp) ListPinned(ctx context.Context, entity *session.Entity, limit int) ([]*session.Message, error) {
	if limit <= 0 {
		limit = historyPageSize
	}
	if err := app.wait(ctx); err != nil {
		return nil, err
	}

	found, err := app.tdClient.SearchChatMessages(&client.SearchChatMessagesRequest{
		ChatId:        entity.ID,
		Query:         "",
		FromMessageId: 0,
		Offset:        0,
		Limit:         int32(limit),
		Filter:        &client.SearchMessagesFilterPinned{},
	})
	if err != nil {
		return nil, mapError(err)
	}

	result := make([]*session.Message, 0, len(found.Messages))
	for _, message := range found.Messages {
		result = append(result, convertMessage(message))
	}
	return result, nil
}

// ListReplies 读取消息的讨论串（频道评论或群组回复）
func (app *TeleApp) ListReplies(ctx context.Context, entity *session.Entity, parentID int64) ([]*session.Message, error) {
	result := make([]*session.Message, 0)
	fromId := int64(0)
	for {
		if err := app.wait(ctx); err != nil {
			return result, err
		}
		history, err := app.tdClient.GetMessageThreadHistory(&client.GetMessageThreadHistoryRequest{
			ChatId:        entity.ID,
			MessageId:     toTdId(parentID),
			FromMessageId: fromId,
			Offset:        0,
			Limit:         historyPageSize,
		})
		if err != nil {
			return result, mapError(err)
		}

		next := fromId
		for _, message := range history.Messages {
			next = message.Id
			if fromId != 0 && message.Id >= fromId {
				continue
			}
			result = append(result, convertMessage(message))
		}
		if len(history.Messages) == 0 || next == fromId {
			return result, nil
		}
		fromId = next
	}
}

func (app *TeleApp) ListAdminActions(ctx context.Context, entity *session.Entity) ([]*session.AdminAction, error) {
	request := &client.GetChatEventLogRequest{
		ChatId: entity.ID,
		Query:  "",
		Limit:  eventsPageSize,
	}

	result := make([]*session.AdminAction, 0)
	for {
		if err := app.wait(ctx); err != nil {
			return result, err
		}
		events, err := app.tdClient.GetChatEventLog(request)
		if err != nil {
			return result, mapError(err)
		}

		for _, event := range events.Events {
			result = append(result, &session.AdminAction{
				ID:     int64(event.Id),
				Action: describeAction(event.Action),
				Date:   unixTime(event.Date),
				UserID: senderUserId(event.MemberId),
			})
		}
		if len(events.Events) < eventsPageSize {
			return result, nil
		}
		request.FromEventId = events.Events[len(events.Events)-1].Id
	}
}

func (app *TeleApp) ListParticipants(ctx context.Context, entity *session.Entity) ([]*session.User, error) {
	chat, err := app.getChat(ctx, entity.ID)
	if err != nil {
		return nil, err
	}

	var members []*client.ChatMember
	switch t := chat.Type.(type) {
	case *client.ChatTypeSupergroup:
		for offset := int32(0); ; {
			if err := app.wait(ctx); err != nil {
				return nil, err
			}
			page, err := app.tdClient.GetSupergroupMembers(&client.GetSupergroupMembersRequest{
				SupergroupId: t.SupergroupId,
				Filter:       &client.SupergroupMembersFilterRecent{},
				Offset:       offset,
				Limit:        membersPageSize,
			})
			if err != nil {
				return nil, mapError(err)
			}
			members = append(members, page.Members...)
			offset += int32(len(page.Members))
			if len(page.Members) == 0 || offset >= page.TotalCount {
				break
			}
		}
	case *client.ChatTypeBasicGroup:
		if err := app.wait(ctx); err != nil {
			return nil, err
		}
		full, err := app.tdClient.GetBasicGroupFullInfo(&client.GetBasicGroupFullInfoRequest{BasicGroupId: t.BasicGroupId})
		if err != nil {
			return nil, mapError(err)
		}
		members = full.Members
	default:
		return nil, session.ErrNotParticipant
	}

	users := make([]*session.User, 0, len(members))
	for _, member := range members {
		userId := senderUserId(member.MemberId)
		if userId == 0 {
			continue
		}
		user, err := app.getUser(ctx, userId)
		if err != nil {
			logger.Warnf("[TeleApp] 获取成员信息失败, id: %d, %v", userId, err)
			continue
		}
		users = append(users, convertUser(user))
	}
	return users, nil
}

func (app *TeleApp) User(ctx context.Context, userID int64) (*session.User, error) {
	user, err := app.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return convertUser(user), nil
}

func (app *TeleApp) DownloadProfilePhoto(ctx context.Context, user *session.User, path string) (string, error) {
	tdUser, err := app.getUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if tdUser.ProfilePhoto == nil || tdUser.ProfilePhoto.Big == nil {
		return "", session.PermanentError("user has no profile photo")
	}
	return app.downloadTo(ctx, tdUser.ProfilePhoto.Big.Id, path)
}

func (app *TeleApp) DownloadEntityPhoto(ctx context.Context, entity *session.Entity, path string) (string, error) {
	chat, err := app.getChat(ctx, entity.ID)
	if err != nil {
		return "", err
	}
	if chat.Photo == nil || chat.Photo.Big == nil {
		return "", session.PermanentError("chat has no photo")
	}
	return app.downloadTo(ctx, chat.Photo.Big.Id, path)
}

func (app *TeleApp) DownloadMedia(ctx context.Context, media *session.Media, path string) (string, error) {
	if media == nil || media.FileID == 0 {
		return "", session.ErrNoFile
	}
	return app.downloadTo(ctx, media.FileID, path)
}

// downloadTo 同步下载到 TDLib 文件目录，再复制到目标路径
func (app *TeleApp) downloadTo(ctx context.Context, fileId int32, path string) (string, error) {
	if err := app.wait(ctx); err != nil {
		return "", err
	}
	file, err := app.tdClient.DownloadFile(&client.DownloadFileRequest{
		FileId:      fileId,
		Priority:    1,
		Synchronous: true,
	})
	if err != nil {
		return "", mapError(err)
	}
	if file.Local == nil || !file.Local.IsDownloadingCompleted || file.Local.Path == "" {
		return "", fmt.Errorf("file %d download incomplete", fileId)
	}

	if err := copyFile(file.Local.Path, path); err != nil {
		return "", err
	}
	return path, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (app *TeleApp) SendText(ctx context.Context, userID int64, text string) error {
	if err := app.wait(ctx); err != nil {
		return err
	}
	chat, err := app.tdClient.CreatePrivateChat(&client.CreatePrivateChatRequest{UserId: userID, Force: false})
	if err != nil {
		return mapError(err)
	}

	_, err = app.tdClient.SendMessage(&client.SendMessageRequest{
		ChatId: chat.Id,
		InputMessageContent: &client.InputMessageText{
			Text: &client.FormattedText{Text: text},
		},
	})
	return mapError(err)
}
